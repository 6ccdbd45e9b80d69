package listing

import (
	"time"

	"taskmarket/core/events"
	nativecommon "taskmarket/native/common"
	"taskmarket/native/identity"
)

const moduleName = "listing"

// State persists listings. NextListingID must hand out monotonically
// increasing, non-zero identifiers.
type State interface {
	NextListingID() (uint64, error)
	ListingPut(*Listing) error
	ListingGet(id uint64) (*Listing, bool)
}

// View is the read-only collaborator surface the task market depends on:
// getListing(listingId) -> (agentId, listingURI, pricing, policy, active).
type View interface {
	GetListing(id uint64) (*Listing, error)
}

// Engine implements listing creation and metadata updates. Authorization is
// delegated entirely to the bound agent via the identity collaborator.
type Engine struct {
	state   State
	agents  identity.AgentView
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs a listing engine bound to the supplied agent
// identity collaborator.
func NewEngine(agents identity.AgentView) *Engine {
	return &Engine{
		agents:  agents,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source for deterministic tests.
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

// CreateListing binds immutable pricing and policy to an agent. The caller
// must pass the agent identity authorization check for agentID.
func (e *Engine) CreateListing(caller [20]byte, agentID uint64, uri string, pricing Pricing, policy Policy) (*Listing, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.agents == nil {
		return nil, ErrNotAuthorized
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	authorized, err := e.agents.IsAuthorized(agentID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}
	id, err := e.state.NextListingID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	listing := &Listing{
		ID:        id,
		AgentID:   agentID,
		URI:       uri,
		Pricing:   pricing,
		Policy:    policy,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return nil, err
	}
	if err := e.state.ListingPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewListingCreatedEvent(sanitized)))
	return sanitized.Clone(), nil
}

// UpdateListing changes the mutable URI and active flag. Pricing, policy,
// and the agent binding never change after creation.
func (e *Engine) UpdateListing(caller [20]byte, listingID uint64, uri string, active bool) error {
	listing, err := e.load(listingID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	authorized, err := e.agents.IsAuthorized(listing.AgentID, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	listing.URI = uri
	listing.Active = active
	listing.UpdatedAt = e.now()
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return err
	}
	if err := e.state.ListingPut(sanitized); err != nil {
		return err
	}
	e.emit(wrapEvent(NewListingUpdatedEvent(sanitized)))
	return nil
}

// GetListing returns the listing definition, implementing the View
// collaborator interface consumed by the task market.
func (e *Engine) GetListing(listingID uint64) (*Listing, error) {
	return e.load(listingID)
}

func (e *Engine) load(listingID uint64) (*Listing, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	listing, ok := e.state.ListingGet(listingID)
	if !ok {
		return nil, ErrNotFound
	}
	return SanitizeListing(listing)
}
