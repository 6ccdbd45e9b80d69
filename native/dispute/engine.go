package dispute

import (
	"time"

	"taskmarket/core/events"
	nativecommon "taskmarket/native/common"
	"taskmarket/native/listing"
	"taskmarket/native/market"
)

const moduleName = "dispute"

// MarketClient is the narrow surface the dispute module calls back into:
// confirming a dispute has opened and returning its resolved outcome.
type MarketClient interface {
	GetTask(taskID uint64) (*market.Task, error)
	MarkDisputed(caller [20]byte, taskID uint64, disputeURI string) error
	ResolveDispute(caller [20]byte, taskID uint64, path market.SettlementPath) (*market.Task, error)
}

// State persists dispute records, the module owner, and the resolver set.
type State interface {
	DisputeRecordGet(taskID uint64) (*DisputeRecord, bool)
	DisputeRecordPut(*DisputeRecord) error

	OwnerGet() ([20]byte, error)
	OwnerPut([20]byte) error
	PendingOwnerGet() ([20]byte, error)
	PendingOwnerPut([20]byte) error

	ResolverGet(addr [20]byte) (bool, error)
	ResolverPut(addr [20]byte, approved bool) error
}

// Engine implements the dispute module: buyer-gated opening within the
// listing's challenge window, and permissioned resolver outcomes relayed
// back to the task market.
type Engine struct {
	state    State
	market   MarketClient
	listings listing.View

	self [20]byte

	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs a dispute module bound to its task market and
// listing collaborators.
func NewEngine(marketClient MarketClient, listings listing.View) *Engine {
	return &Engine{
		market:   marketClient,
		listings: listings,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
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

// SetSelfAddress configures the address this module presents to the task
// market when calling markDisputed/resolveDispute. It must match the
// address the market has configured as its dispute module.
func (e *Engine) SetSelfAddress(self [20]byte) { e.self = self }

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

func (e *Engine) load(taskID uint64) (*DisputeRecord, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	record, ok := e.state.DisputeRecordGet(taskID)
	if !ok {
		return &DisputeRecord{TaskID: taskID}, nil
	}
	return SanitizeDisputeRecord(record)
}

// reconstructRecord rebuilds a minimal opened record for a task the market
// already reports as DISPUTED, for continuity across a dispute module
// upgrade whose new module never observed the original openDispute call.
func (e *Engine) reconstructRecord(taskID uint64) (*DisputeRecord, error) {
	if e.market == nil {
		return nil, ErrNilCollaborator
	}
	task, err := e.market.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != market.StatusDisputed {
		return nil, ErrNotOpened
	}
	return &DisputeRecord{
		TaskID:  taskID,
		Buyer:   task.Buyer,
		Opened:  true,
		Outcome: OutcomeSellerWins,
	}, nil
}

// OpenDispute opens a dispute record for taskID. The caller must be the
// task's buyer, whether invoked directly or relayed by the task market on
// the buyer's behalf. The task must be SUBMITTED and still within its
// listing's challenge window. Effect: mark the record opened with a
// default SELLER_WINS outcome and call back into the market's
// markDisputed.
func (e *Engine) OpenDispute(taskID uint64, caller [20]byte, disputeURI string) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.market == nil || e.listings == nil {
		return ErrNilCollaborator
	}
	existing, err := e.load(taskID)
	if err != nil {
		return err
	}
	if existing.Opened {
		return ErrAlreadyOpened
	}
	task, err := e.market.GetTask(taskID)
	if err != nil {
		return err
	}
	if caller != task.Buyer {
		return ErrNotBuyer
	}
	if task.Status != market.StatusSubmitted {
		return ErrTaskNotSubmitted
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return err
	}
	if e.now() >= task.SubmittedAt+l.Policy.ChallengeWindowSec {
		return ErrChallengeWindowOpen
	}
	normalizedURI, err := normalizeURI(disputeURI)
	if err != nil {
		return err
	}
	record := &DisputeRecord{
		TaskID:     taskID,
		Buyer:      caller,
		Opened:     true,
		DisputeURI: normalizedURI,
		Outcome:    OutcomeSellerWins,
	}
	sanitized, err := SanitizeDisputeRecord(record)
	if err != nil {
		return err
	}
	if err := e.state.DisputeRecordPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewDisputeOpenedEvent(sanitized)))
	return e.market.MarkDisputed(e.self, taskID, normalizedURI)
}

// ResolveDispute lets an approved resolver settle an opened dispute,
// persisting the outcome and relaying it to the task market as a
// settlement path.
func (e *Engine) ResolveDispute(caller [20]byte, taskID uint64, outcome Outcome, resolutionURI string) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.market == nil {
		return ErrNilCollaborator
	}
	approved, err := e.state.ResolverGet(caller)
	if err != nil {
		return err
	}
	if !approved {
		return ErrNotResolver
	}
	if !outcome.Valid() {
		return ErrInvalidOutcome
	}
	record, err := e.load(taskID)
	if err != nil {
		return err
	}
	if !record.Opened {
		// A dispute module upgrade can hand a task to a new module while it
		// is already DISPUTED on the market: the new module never saw
		// openDispute for it. Reconstruct a minimal record from the market's
		// own task state instead of rejecting outright, so in-flight
		// disputes survive the handoff.
		reconstructed, err := e.reconstructRecord(taskID)
		if err != nil {
			return err
		}
		record = reconstructed
	}
	if record.Resolved {
		return ErrAlreadyResolved
	}
	normalizedURI, err := normalizeURI(resolutionURI)
	if err != nil {
		return err
	}
	record.Resolved = true
	record.Outcome = outcome
	record.ResolutionURI = normalizedURI
	sanitized, err := SanitizeDisputeRecord(record)
	if err != nil {
		return err
	}
	if err := e.state.DisputeRecordPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewDisputeResolvedEvent(sanitized, caller)))
	_, err = e.market.ResolveDispute(e.self, taskID, outcome.ToSettlementPath())
	return err
}

// SetResolver grants or revokes resolver status. Owner-only.
func (e *Engine) SetResolver(caller, resolver [20]byte, approved bool) error {
	owner, err := e.state.OwnerGet()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrNotOwner
	}
	return e.state.ResolverPut(resolver, approved)
}

// ProposeOwner begins a two-step transfer of module ownership.
func (e *Engine) ProposeOwner(caller, next [20]byte) error {
	owner, err := e.state.OwnerGet()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrNotOwner
	}
	return e.state.PendingOwnerPut(next)
}

// AcceptOwner completes the two-step ownership transfer; only the pending
// owner may call it.
func (e *Engine) AcceptOwner(caller [20]byte) error {
	pending, err := e.state.PendingOwnerGet()
	if err != nil {
		return err
	}
	if caller != pending {
		return ErrNotPendingOwner
	}
	if err := e.state.OwnerPut(caller); err != nil {
		return err
	}
	return e.state.PendingOwnerPut([20]byte{})
}

// GetDisputeRecord returns the sanitized dispute record for taskID.
func (e *Engine) GetDisputeRecord(taskID uint64) (*DisputeRecord, error) {
	record, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if !record.Opened {
		return nil, ErrRecordNotFound
	}
	return record, nil
}
