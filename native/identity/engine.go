package identity

import (
	"time"

	"taskmarket/core/events"
	nativecommon "taskmarket/native/common"
)

const moduleName = "identity"

// State persists agents and the operator-approval relation. Implementations
// are free to back this with whatever storage engine the host uses; the
// identity package only requires the narrow surface below.
type State interface {
	NextAgentID() (uint64, error)
	AgentPut(*Agent) error
	AgentGet(id uint64) (*Agent, bool)
	OperatorApprovalGet(owner, operator [20]byte) (bool, error)
	OperatorApprovalPut(owner, operator [20]byte, approved bool) error
}

// AgentView is the read-only collaborator surface consumed by the listing
// registry and task market per the spec's external interface: ownerOf,
// getApproved, and isApprovedForAll.
type AgentView interface {
	OwnerOf(agentID uint64) ([20]byte, error)
	GetApproved(agentID uint64) ([20]byte, error)
	IsApprovedForAll(owner, operator [20]byte) (bool, error)
	IsAuthorized(agentID uint64, caller [20]byte) (bool, error)
}

// Engine implements the agent identity module: registration, metadata
// updates, approvals, and transfers.
type Engine struct {
	state   State
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs an identity engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted by every mutating call.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source; tests use this for determinism.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *eventWrapper) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// RegisterAgent mints a new agent owned by the caller and returns the stored
// record.
func (e *Engine) RegisterAgent(caller [20]byte, uri string) (*Agent, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalizedURI, err := NormalizeURI(uri)
	if err != nil {
		return nil, err
	}
	id, err := e.state.NextAgentID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	agent := &Agent{ID: id, Owner: caller, URI: normalizedURI, CreatedAt: now, UpdatedAt: now}
	sanitized, err := SanitizeAgent(agent)
	if err != nil {
		return nil, err
	}
	if err := e.state.AgentPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewAgentRegisteredEvent(sanitized)))
	return sanitized.Clone(), nil
}

// SetAgentURI updates the metadata URI. The caller must be the owner, the
// single-approved address, or an approved operator.
func (e *Engine) SetAgentURI(caller [20]byte, agentID uint64, uri string) error {
	agent, err := e.load(agentID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	authorized, err := e.IsAuthorized(agentID, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	normalizedURI, err := NormalizeURI(uri)
	if err != nil {
		return err
	}
	agent.URI = normalizedURI
	agent.UpdatedAt = e.now()
	sanitized, err := SanitizeAgent(agent)
	if err != nil {
		return err
	}
	if err := e.state.AgentPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewAgentURIUpdatedEvent(sanitized)))
	return nil
}

// Approve sets or clears the single-address approval for an agent. The
// caller must be the owner or an approved operator.
func (e *Engine) Approve(caller [20]byte, agentID uint64, approved [20]byte) error {
	agent, err := e.load(agentID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	isOperator, err := e.state.OperatorApprovalGet(agent.Owner, caller)
	if err != nil {
		return err
	}
	if caller != agent.Owner && !isOperator {
		return ErrNotAuthorized
	}
	agent.Approved = approved
	agent.UpdatedAt = e.now()
	sanitized, err := SanitizeAgent(agent)
	if err != nil {
		return err
	}
	if err := e.state.AgentPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewAgentApprovedEvent(agentID, agent.Owner, approved)))
	return nil
}

// SetApprovalForAll grants or revokes blanket operator approval over all of
// the caller's agents.
func (e *Engine) SetApprovalForAll(caller, operator [20]byte, approved bool) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.state.OperatorApprovalPut(caller, operator, approved); err != nil {
		return err
	}
	e.emit(wrapEvent(NewAgentApprovalForAllEvent(caller, operator, approved)))
	return nil
}

// TransferAgent moves ownership of an agent to a new address, clearing any
// single-address approval.
func (e *Engine) TransferAgent(caller [20]byte, agentID uint64, to [20]byte) error {
	agent, err := e.load(agentID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	authorized, err := e.IsAuthorized(agentID, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	if to == ([20]byte{}) {
		return ErrNotAuthorized
	}
	previousOwner := agent.Owner
	agent.Owner = to
	agent.Approved = [20]byte{}
	agent.UpdatedAt = e.now()
	sanitized, err := SanitizeAgent(agent)
	if err != nil {
		return err
	}
	if err := e.state.AgentPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewAgentTransferredEvent(sanitized, previousOwner)))
	return nil
}

// OwnerOf returns the current owner of the agent.
func (e *Engine) OwnerOf(agentID uint64) ([20]byte, error) {
	agent, err := e.load(agentID)
	if err != nil {
		return [20]byte{}, err
	}
	return agent.Owner, nil
}

// GetApproved returns the single-address approval for the agent, or the zero
// address when none is set.
func (e *Engine) GetApproved(agentID uint64) ([20]byte, error) {
	agent, err := e.load(agentID)
	if err != nil {
		return [20]byte{}, err
	}
	return agent.Approved, nil
}

// IsApprovedForAll reports whether operator holds blanket approval over all
// of owner's agents.
func (e *Engine) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if e.state == nil {
		return false, ErrNilState
	}
	return e.state.OperatorApprovalGet(owner, operator)
}

// IsAuthorized reports whether caller is the owner, the single-approved
// address, or an approved operator for agentID.
func (e *Engine) IsAuthorized(agentID uint64, caller [20]byte) (bool, error) {
	agent, err := e.load(agentID)
	if err != nil {
		return false, err
	}
	if caller == agent.Owner {
		return true, nil
	}
	if agent.Approved != ([20]byte{}) && caller == agent.Approved {
		return true, nil
	}
	return e.state.OperatorApprovalGet(agent.Owner, caller)
}

// GetAgent returns the full sanitized agent record.
func (e *Engine) GetAgent(agentID uint64) (*Agent, error) {
	return e.load(agentID)
}

func (e *Engine) load(agentID uint64) (*Agent, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	agent, ok := e.state.AgentGet(agentID)
	if !ok {
		return nil, ErrUnknownAgent
	}
	sanitized, err := SanitizeAgent(agent)
	if err != nil {
		return nil, err
	}
	return sanitized, nil
}
