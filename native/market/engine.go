package market

import (
	"math/big"
	"time"

	"taskmarket/core/events"
	nativecommon "taskmarket/native/common"
	"taskmarket/native/identity"
	"taskmarket/native/listing"
)

const moduleName = "market"

// PaymentToken is the external collaborator the market pulls funds from and
// pushes payouts through. The market never assumes anything about the
// token's internal accounting; every custody movement is verified against
// the token's own reported balances.
type PaymentToken interface {
	BalanceOf(owner [20]byte) (*big.Int, error)
	TransferFrom(from, to [20]byte, amount *big.Int) (bool, error)
	Transfer(to [20]byte, amount *big.Int) (bool, error)
}

// TokenRegistry resolves a listing's payment token symbol to the live
// collaborator contract.
type TokenRegistry interface {
	Token(symbol string) (PaymentToken, error)
}

// DisputeModuleClient is the narrow surface the market calls into when a
// buyer routes a dispute through the configured dispute module rather than
// calling markDisputed directly.
type DisputeModuleClient interface {
	OpenDispute(taskID uint64, buyer [20]byte, disputeURI string) error
}

// State persists tasks and the market's privileged addresses.
type State interface {
	NextTaskID() (uint64, error)
	TaskPut(*Task) error
	TaskGet(id uint64) (*Task, bool)

	AdminGet() ([20]byte, error)
	AdminPut([20]byte) error
	PendingAdminGet() ([20]byte, error)
	PendingAdminPut([20]byte) error

	DisputeModuleGet() ([20]byte, error)
	DisputeModulePut([20]byte) error
	PendingDisputeModuleGet() ([20]byte, int64, error)
	PendingDisputeModulePut(addr [20]byte, activateAt int64) error
	ClearPendingDisputeModule() error
}

// Engine implements the task market: the seven-state escrow machine bound
// against a listing registry, an agent identity collaborator, and an
// external payment token registry.
type Engine struct {
	state    State
	listings listing.View
	agents   identity.AgentView
	tokens   TokenRegistry
	disputes DisputeModuleClient

	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView

	self    [20]byte
	entered bool
}

// NewEngine constructs a task market engine bound to its required
// collaborators. The dispute module client may be wired later via
// SetDisputeModuleClient once the dispute package is constructed, breaking
// the natural import cycle between the two packages.
func NewEngine(listings listing.View, agents identity.AgentView, tokens TokenRegistry) *Engine {
	return &Engine{
		listings: listings,
		agents:   agents,
		tokens:   tokens,
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

// SetDisputeModuleClient wires the dispute module collaborator used by
// disputeSubmission to route buyer-initiated disputes.
func (e *Engine) SetDisputeModuleClient(client DisputeModuleClient) { e.disputes = client }

// SetSelfAddress configures the market's own custody address, the account
// pulls deposit into and payouts are pushed from. Hosts bind this to the
// deployed module account at wiring time.
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

func (e *Engine) enter() error {
	if e.entered {
		return ErrReentrant
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) load(taskID uint64) (*Task, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	task, ok := e.state.TaskGet(taskID)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return SanitizeTask(task)
}

func (e *Engine) store(task *Task) (*Task, error) {
	sanitized, err := SanitizeTask(task)
	if err != nil {
		return nil, err
	}
	if err := e.state.TaskPut(sanitized); err != nil {
		return nil, err
	}
	return sanitized, nil
}

func (e *Engine) tokenFor(symbol string) (PaymentToken, error) {
	if e.tokens == nil {
		return nil, ErrNilCollaborator
	}
	token, err := e.tokens.Token(symbol)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrUnknownToken
	}
	return token, nil
}

// pullExact pulls amount from `from` into the market's own custody and
// verifies the market's own balance increased by exactly amount, rejecting
// fee-on-transfer and rebasing tokens outright.
func (e *Engine) pullExact(token PaymentToken, self, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	before, err := token.BalanceOf(self)
	if err != nil {
		return err
	}
	ok, err := token.TransferFrom(from, self, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCustodyTransferFailed
	}
	after, err := token.BalanceOf(self)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(after, before)
	if delta.Cmp(amount) != 0 {
		return ErrCustodyDeltaMismatch
	}
	return nil
}

// pushExact pays amount out of the market's own custody to `to`.
func (e *Engine) pushExact(token PaymentToken, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	ok, err := token.Transfer(to, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCustodyTransferFailed
	}
	return nil
}

// PostTask opens a task against an active listing and leaves it in OPEN.
// Pricing is not derived here: the seller side quotes through ProposeQuote,
// or, for listings that do not require a quote, through AcceptTask.
func (e *Engine) PostTask(buyer [20]byte, listingID uint64, taskURI string, proposedUnits uint64) (*Task, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.listings == nil {
		return nil, ErrNilCollaborator
	}
	l, err := e.listings.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, ErrListingInactive
	}
	if proposedUnits < l.Pricing.MinUnits || proposedUnits > l.Pricing.MaxUnits {
		return nil, ErrUnitsOutOfRange
	}
	normalizedURI, err := normalizeURI(taskURI)
	if err != nil {
		return nil, err
	}
	id, err := e.state.NextTaskID()
	if err != nil {
		return nil, err
	}
	task := &Task{
		ID:            id,
		ListingID:     listingID,
		AgentID:       l.AgentID,
		Buyer:         buyer,
		PaymentToken:  l.Pricing.PaymentToken,
		TaskURI:       normalizedURI,
		ProposedUnits: proposedUnits,
		FundedAmount:  big.NewInt(0),
		SellerBond:    big.NewInt(0),
		Status:        StatusOpen,
	}
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewTaskPostedEvent(stored)))
	return stored.Clone(), nil
}

// AcceptTask is the agent-authorized implicit-quote transition: when the
// listing does not require an explicit quote, the bound agent derives
// pricing straight from the listing and moves the task to QUOTED.
func (e *Engine) AcceptTask(caller [20]byte, taskID uint64) (*Task, error) {
	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if task.Status != StatusOpen {
		return nil, ErrInvalidTransition
	}
	authorized, err := e.agents.IsAuthorized(task.AgentID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, ErrListingInactive
	}
	if l.Pricing.QuoteRequired {
		return nil, ErrQuoteRequired
	}
	total := new(big.Int).Mul(l.Pricing.UnitPrice, new(big.Int).SetUint64(task.ProposedUnits))
	total.Add(total, l.Pricing.BasePrice)
	task.QuotedUnits = task.ProposedUnits
	task.QuotedTotalPrice = total
	task.Status = StatusQuoted
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewTaskAcceptedEvent(stored)))
	return stored.Clone(), nil
}

// ProposeQuote lets the bound agent attach an explicit quote to a task that
// is still OPEN, moving it to QUOTED.
func (e *Engine) ProposeQuote(caller [20]byte, taskID uint64, quotedUnits uint64, quotedTotalPrice *big.Int, quoteExpiry int64) (*Task, error) {
	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if task.Status != StatusOpen {
		return nil, ErrInvalidTransition
	}
	authorized, err := e.agents.IsAuthorized(task.AgentID, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, ErrListingInactive
	}
	if quotedUnits < l.Pricing.MinUnits || quotedUnits > l.Pricing.MaxUnits {
		return nil, ErrUnitsOutOfRange
	}
	if quotedUnits == 0 {
		return nil, ErrZeroUnits
	}
	if quotedTotalPrice == nil || quotedTotalPrice.Sign() < 0 {
		return nil, ErrAmountMismatch
	}
	task.QuotedUnits = quotedUnits
	task.QuotedTotalPrice = new(big.Int).Set(quotedTotalPrice)
	task.QuoteExpiry = quoteExpiry
	task.Status = StatusQuoted
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewQuoteProposedEvent(stored)))
	return stored.Clone(), nil
}

// SellerCancelQuote lets the bound agent withdraw a quote before the buyer
// accepts it, returning the task to CANCELLED.
func (e *Engine) SellerCancelQuote(caller [20]byte, taskID uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if task.Status != StatusQuoted {
		return ErrInvalidTransition
	}
	if task.FundedAmount.Sign() != 0 {
		return ErrInvalidTransition
	}
	authorized, err := e.agents.IsAuthorized(task.AgentID, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	bondRefund := new(big.Int).Set(task.SellerBond)
	bondFunder := task.BondFunder
	task.Status = StatusCancelled
	task.QuotedUnits = 0
	task.QuotedTotalPrice = nil
	task.QuoteExpiry = 0
	stored, err := e.store(task)
	if err != nil {
		return err
	}
	if bondRefund.Sign() != 0 {
		token, err := e.tokenFor(stored.PaymentToken)
		if err != nil {
			return err
		}
		if err := e.pushExact(token, bondFunder, bondRefund); err != nil {
			return err
		}
	}
	e.emit(wrapEvent(NewSellerCancelledQuoteEvent(stored, bondRefund)))
	return nil
}

// CancelTask lets the buyer withdraw a task before activation, refunding
// any funded escrow and any seller bond already on deposit.
func (e *Engine) CancelTask(caller [20]byte, taskID uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != task.Buyer {
		return ErrNotBuyer
	}
	if task.Status != StatusOpen && task.Status != StatusQuoted {
		return ErrInvalidTransition
	}
	fundedRefund := new(big.Int).Set(task.FundedAmount)
	bondRefund := new(big.Int).Set(task.SellerBond)
	bondFunder := task.BondFunder
	task.Status = StatusCancelled
	stored, err := e.store(task)
	if err != nil {
		return err
	}
	if fundedRefund.Sign() != 0 || bondRefund.Sign() != 0 {
		token, err := e.tokenFor(stored.PaymentToken)
		if err != nil {
			return err
		}
		if err := e.pushExact(token, stored.Buyer, fundedRefund); err != nil {
			return err
		}
		if err := e.pushExact(token, bondFunder, bondRefund); err != nil {
			return err
		}
	}
	e.emit(wrapEvent(NewTaskCancelledEvent(stored)))
	return nil
}

// FundSellerBond deposits the collateral the listing's policy requires from
// the agent side before activation. bondFunder is snapshotted and is the
// address refunded at settlement, regardless of any later agent transfer.
func (e *Engine) FundSellerBond(caller [20]byte, taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if task.Status != StatusQuoted {
		return nil, ErrInvalidTransition
	}
	if task.SellerBond.Sign() != 0 {
		return nil, ErrBondAlreadyFunded
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Policy.SellerBondBps == 0 {
		return nil, ErrBondDisabled
	}
	required := RequiredBond(task.QuotedTotalPrice, l.Policy.SellerBondBps)
	if required.Sign() == 0 {
		return nil, ErrBondDisabled
	}
	token, err := e.tokenFor(task.PaymentToken)
	if err != nil {
		return nil, err
	}
	self := e.selfAddress()
	if err := e.pullExact(token, self, caller, required); err != nil {
		return nil, err
	}
	task.SellerBond = required
	task.BondFunder = caller
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewSellerBondFundedEvent(stored)))
	return stored.Clone(), nil
}

// FundTask deposits the buyer's escrow for a QUOTED task. The task remains
// QUOTED; acceptQuote is the separate transition that activates it.
func (e *Engine) FundTask(caller [20]byte, taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Buyer {
		return nil, ErrNotBuyer
	}
	if task.Status != StatusQuoted {
		return nil, ErrInvalidTransition
	}
	if task.QuoteExpiry != 0 && e.now() > task.QuoteExpiry {
		return nil, ErrQuoteExpired
	}
	if task.FundedAmount.Sign() != 0 {
		return nil, ErrAlreadyFunded
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	required := RequiredBond(task.QuotedTotalPrice, l.Policy.SellerBondBps)
	if required.Sign() > 0 && task.SellerBond.Sign() == 0 {
		return nil, ErrBondNotFunded
	}
	token, err := e.tokenFor(task.PaymentToken)
	if err != nil {
		return nil, err
	}
	self := e.selfAddress()
	if err := e.pullExact(token, self, caller, task.QuotedTotalPrice); err != nil {
		return nil, err
	}
	task.FundedAmount = new(big.Int).Set(task.QuotedTotalPrice)
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewTaskFundedEvent(stored)))
	return stored.Clone(), nil
}

// AcceptQuote activates a fully-funded QUOTED task, snapshotting the
// seller as the agent's current owner. This snapshot, not the agent's
// ownership, governs every post-activation seller right and payout.
func (e *Engine) AcceptQuote(caller [20]byte, taskID uint64) (*Task, error) {
	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Buyer {
		return nil, ErrNotBuyer
	}
	if task.Status != StatusQuoted {
		return nil, ErrInvalidTransition
	}
	if task.FundedAmount.Cmp(task.QuotedTotalPrice) != 0 {
		return nil, ErrAmountMismatch
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if RequiredBond(task.QuotedTotalPrice, l.Policy.SellerBondBps).Sign() > 0 && task.SellerBond.Sign() == 0 {
		return nil, ErrBondMismatch
	}
	owner, err := e.agents.OwnerOf(task.AgentID)
	if err != nil {
		return nil, err
	}
	task.Seller = owner
	task.ActivatedAt = e.now()
	task.Status = StatusActive
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewQuoteAcceptedEvent(stored)))
	return stored.Clone(), nil
}

// SubmitDeliverable records the seller's artifact. Authorization is checked
// against the snapshotted seller, never re-derived agent ownership, so a
// mid-task agent transfer cannot redirect an in-flight task.
func (e *Engine) SubmitDeliverable(caller [20]byte, taskID uint64, artifactURI string, artifactHash [32]byte) (*Task, error) {
	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Seller {
		return nil, ErrNotSeller
	}
	if task.Status != StatusActive {
		return nil, ErrInvalidTransition
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if e.now() >= task.ActivatedAt+l.Policy.DeliveryWindowSec {
		return nil, ErrDeliveryWindowExpired
	}
	normalizedURI, err := normalizeURI(artifactURI)
	if err != nil {
		return nil, err
	}
	task.ArtifactURI = normalizedURI
	task.ArtifactHash = artifactHash
	task.SubmittedAt = e.now()
	task.Status = StatusSubmitted
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewDeliverableSubmittedEvent(stored)))
	return stored.Clone(), nil
}

// AcceptSubmission lets the buyer accept a deliverable immediately,
// settling the task with the accepted split.
func (e *Engine) AcceptSubmission(caller [20]byte, taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Buyer {
		return nil, ErrNotBuyer
	}
	if task.Status != StatusSubmitted {
		return nil, ErrInvalidTransition
	}
	e.emit(wrapEvent(NewSubmissionAcceptedEvent(task)))
	return e.settle(task, PathAccepted)
}

// SettleAfterTimeout is permissionless: anyone may trigger settlement once
// the challenge window has elapsed without a buyer dispute.
func (e *Engine) SettleAfterTimeout(taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if task.Status != StatusSubmitted {
		return nil, ErrInvalidTransition
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if e.now() < task.SubmittedAt+l.Policy.ChallengeWindowSec {
		return nil, ErrChallengeWindowActive
	}
	return e.settle(task, PathTimeout)
}

// DisputeSubmission lets the buyer contest a submitted deliverable within
// the challenge window, routing the dispute through the configured dispute
// module, which calls back into MarkDisputed. With no dispute module wired
// it fails with ErrDisputeModuleNotSet.
func (e *Engine) DisputeSubmission(caller [20]byte, taskID uint64, disputeURI string) (*Task, error) {
	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Buyer {
		return nil, ErrNotBuyer
	}
	if task.Status != StatusSubmitted {
		return nil, ErrInvalidTransition
	}
	if e.disputes == nil {
		return nil, ErrDisputeModuleNotSet
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if e.now() >= task.SubmittedAt+l.Policy.ChallengeWindowSec {
		return nil, ErrChallengeWindowOpen
	}
	// openDispute transitions the task to DISPUTED by calling back into
	// markDisputed; this method only validates preconditions and relays.
	if err := e.disputes.OpenDispute(task.ID, caller, disputeURI); err != nil {
		return nil, err
	}
	return e.load(taskID)
}

// MarkDisputed is the permissioned entry point used by the dispute module
// to confirm a dispute has been formally opened; it is the only path by
// which a task moves to DISPUTED.
func (e *Engine) MarkDisputed(caller [20]byte, taskID uint64, disputeURI string) error {
	task, err := e.load(taskID)
	if err != nil {
		return err
	}
	disputeModule, err := e.state.DisputeModuleGet()
	if err != nil {
		return err
	}
	if disputeModule == ([20]byte{}) {
		return ErrDisputeModuleNotSet
	}
	if caller != disputeModule {
		return ErrNotDisputeModule
	}
	if task.Status != StatusSubmitted {
		return ErrInvalidTransition
	}
	task.DisputedAt = e.now()
	task.Status = StatusDisputed
	stored, err := e.store(task)
	if err != nil {
		return err
	}
	e.emit(wrapEvent(NewSubmissionDisputedEvent(stored, disputeURI)))
	return nil
}

// ResolveDispute is called exclusively by the configured dispute module
// with one of the four dispute settlement paths, settling the task.
func (e *Engine) ResolveDispute(caller [20]byte, taskID uint64, path SettlementPath) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	disputeModule, err := e.state.DisputeModuleGet()
	if err != nil {
		return nil, err
	}
	if disputeModule == ([20]byte{}) {
		return nil, ErrDisputeModuleNotSet
	}
	if caller != disputeModule {
		return nil, ErrNotDisputeModule
	}
	if task.Status != StatusDisputed {
		return nil, ErrInvalidTransition
	}
	if !ValidDisputePath(path) {
		return nil, ErrInvalidSettlementPath
	}
	return e.settle(task, path)
}

// SettleAfterPostDisputeTimeout is permissionless: anyone may force
// settlement under the accepted split once a dispute has sat unresolved
// past the listing's post-dispute window.
func (e *Engine) SettleAfterPostDisputeTimeout(taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if task.Status != StatusDisputed {
		return nil, ErrInvalidTransition
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Policy.PostDisputeWindowSec <= 0 {
		return nil, ErrPostDisputeDisabled
	}
	if e.now() < task.DisputedAt+l.Policy.PostDisputeWindowSec {
		return nil, ErrPostDisputeActive
	}
	return e.settle(task, PathPostDisputeTimeout)
}

// CancelForNonDelivery lets the buyer cancel an ACTIVE task whose delivery
// window has elapsed without a submission, paying the buyer's full escrow
// plus the seller's bond to the buyer as a penalty.
func (e *Engine) CancelForNonDelivery(caller [20]byte, taskID uint64) (*Task, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	task, err := e.load(taskID)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != task.Buyer {
		return nil, ErrNotBuyer
	}
	if task.Status != StatusActive {
		return nil, ErrInvalidTransition
	}
	l, err := e.listings.GetListing(task.ListingID)
	if err != nil {
		return nil, err
	}
	if e.now() < task.ActivatedAt+l.Policy.DeliveryWindowSec {
		return nil, ErrDeliveryWindowActive
	}
	token, err := e.tokenFor(task.PaymentToken)
	if err != nil {
		return nil, err
	}
	escrowRefund := new(big.Int).Set(task.FundedAmount)
	sellerBondPenalty := new(big.Int).Set(task.SellerBond)
	buyerPayout := new(big.Int).Add(escrowRefund, sellerBondPenalty)
	task.Status = StatusCancelled
	task.Settled = true
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}
	if err := e.pushExact(token, stored.Buyer, buyerPayout); err != nil {
		return nil, err
	}
	e.emit(wrapEvent(NewTaskCancelledForNonDeliveryEvent(stored, escrowRefund, sellerBondPenalty)))
	return stored.Clone(), nil
}

// settle computes the payout split for path, persists the terminal state
// before any token movement per checks-effects-interactions, then pushes
// payouts in buyer, seller, bondFunder order.
func (e *Engine) settle(task *Task, path SettlementPath) (*Task, error) {
	token, err := e.tokenFor(task.PaymentToken)
	if err != nil {
		return nil, err
	}
	buyerPayout, sellerPayout, bondFunderPayout := computePayouts(task.FundedAmount, task.SellerBond, path)

	task.Status = StatusSettled
	task.SettlementPath = path
	task.Settled = true
	stored, err := e.store(task)
	if err != nil {
		return nil, err
	}

	if err := e.pushExact(token, stored.Buyer, buyerPayout); err != nil {
		return nil, err
	}
	if err := e.pushExact(token, stored.Seller, sellerPayout); err != nil {
		return nil, err
	}
	if err := e.pushExact(token, stored.BondFunder, bondFunderPayout); err != nil {
		return nil, err
	}

	e.emit(wrapEvent(NewTaskSettledEvent(stored, buyerPayout, sellerPayout, bondFunderPayout)))
	e.emit(wrapEvent(NewTaskSettledV2Event(stored, buyerPayout, sellerPayout, bondFunderPayout)))
	if path == PathPostDisputeTimeout {
		e.emit(wrapEvent(NewPostDisputeTimeoutSettledEvent(stored, buyerPayout, sellerPayout, bondFunderPayout)))
	}
	return stored.Clone(), nil
}

// computePayouts implements the deterministic settlement split from the
// buyerEscrowPayout/buyerBondPayout table: sellerEscrowPayout = funded -
// buyerEscrowPayout, sellerBondRefund = bond - buyerBondPayout, paid to the
// snapshotted seller and bondFunder respectively. All division is floor
// division; any DISPUTE_SPLIT rounding residue accrues to the seller.
func computePayouts(funded, bond *big.Int, path SettlementPath) (buyerPayout, sellerPayout, bondFunderPayout *big.Int) {
	var buyerEscrow, buyerBond *big.Int
	switch path {
	case PathAccepted, PathTimeout, PathPostDisputeTimeout, PathDisputeSellerWins:
		buyerEscrow, buyerBond = big.NewInt(0), big.NewInt(0)
	case PathDisputeBuyerWins:
		buyerEscrow, buyerBond = new(big.Int).Set(funded), new(big.Int).Set(bond)
	case PathDisputeSplit:
		buyerEscrow, buyerBond = new(big.Int).Div(funded, big.NewInt(2)), big.NewInt(0)
	case PathDisputeCancel:
		buyerEscrow, buyerBond = new(big.Int).Set(funded), big.NewInt(0)
	default:
		buyerEscrow, buyerBond = big.NewInt(0), big.NewInt(0)
	}
	sellerEscrow := new(big.Int).Sub(funded, buyerEscrow)
	bondRefund := new(big.Int).Sub(bond, buyerBond)
	buyerTotal := new(big.Int).Add(buyerEscrow, buyerBond)
	return buyerTotal, sellerEscrow, bondRefund
}

func (e *Engine) selfAddress() [20]byte {
	return e.self
}

// ProposeAdmin begins a two-step transfer of the market's admin address.
func (e *Engine) ProposeAdmin(caller, next [20]byte) error {
	current, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if caller != current {
		return ErrNotAdmin
	}
	return e.state.PendingAdminPut(next)
}

// AcceptAdmin completes the two-step admin transfer; only the pending
// admin may call it.
func (e *Engine) AcceptAdmin(caller [20]byte) error {
	pending, err := e.state.PendingAdminGet()
	if err != nil {
		return err
	}
	if caller != pending {
		return ErrNotPendingAdmin
	}
	if err := e.state.AdminPut(caller); err != nil {
		return err
	}
	return e.state.PendingAdminPut([20]byte{})
}

// SetDisputeModule installs or schedules a dispute module swap. Only the
// admin may call it. With no module currently configured the new address
// installs immediately; otherwise the swap is timelocked, activating no
// earlier than DisputeModuleUpdateDelay seconds after this call.
func (e *Engine) SetDisputeModule(caller, next [20]byte) error {
	admin, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if caller != admin {
		return ErrNotAdmin
	}
	current, err := e.state.DisputeModuleGet()
	if err != nil {
		return err
	}
	if current == next {
		return ErrDisputeModuleUnchanged
	}
	if current == ([20]byte{}) {
		if err := e.state.DisputeModulePut(next); err != nil {
			return err
		}
		e.emit(wrapEvent(NewDisputeModuleUpdatedEvent(current, next)))
		return nil
	}
	activateAt := e.now() + DisputeModuleUpdateDelay
	if err := e.state.PendingDisputeModulePut(next, activateAt); err != nil {
		return err
	}
	e.emit(wrapEvent(NewDisputeModuleUpdateScheduledEvent(current, next, activateAt)))
	return nil
}

// CancelDisputeModuleUpdate aborts a pending timelocked upgrade. Admin-only.
func (e *Engine) CancelDisputeModuleUpdate(caller [20]byte) error {
	admin, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if caller != admin {
		return ErrNotAdmin
	}
	pending, _, err := e.state.PendingDisputeModuleGet()
	if err != nil {
		return err
	}
	if pending == ([20]byte{}) {
		return ErrNoPendingUpgrade
	}
	current, err := e.state.DisputeModuleGet()
	if err != nil {
		return err
	}
	if err := e.state.ClearPendingDisputeModule(); err != nil {
		return err
	}
	e.emit(wrapEvent(NewDisputeModuleUpdateCancelledEvent(current, pending)))
	return nil
}

// ExecuteDisputeModuleUpdate completes a pending upgrade once the timelock
// has elapsed. Admin-only.
func (e *Engine) ExecuteDisputeModuleUpdate(caller [20]byte) error {
	admin, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if caller != admin {
		return ErrNotAdmin
	}
	pending, activateAt, err := e.state.PendingDisputeModuleGet()
	if err != nil {
		return err
	}
	if pending == ([20]byte{}) {
		return ErrNoPendingUpgrade
	}
	if e.now() < activateAt {
		return ErrUpgradeNotReady
	}
	previous, err := e.state.DisputeModuleGet()
	if err != nil {
		return err
	}
	if err := e.state.DisputeModulePut(pending); err != nil {
		return err
	}
	if err := e.state.ClearPendingDisputeModule(); err != nil {
		return err
	}
	e.emit(wrapEvent(NewDisputeModuleUpdatedEvent(previous, pending)))
	return nil
}

// GetTask returns the sanitized task record.
func (e *Engine) GetTask(taskID uint64) (*Task, error) {
	return e.load(taskID)
}
