package dispute

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket/native/identity"
	"taskmarket/native/listing"
	"taskmarket/native/market"
	"taskmarket/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	marketAddr   = addr(0xFF)
	adminAddr    = addr(0xA0)
	moduleOwner  = addr(0xD0)
	moduleSelf   = addr(0xD1)
	resolverAddr = addr(0xE1)
)

// harness wires real identity, listing, market, and dispute engines
// together so dispute tests exercise the full callback cycle rather than a
// mocked market.
type harness struct {
	t        *testing.T
	agents   *identity.Engine
	listings *listing.Engine
	market   *market.Engine
	disputes *Engine
	tokens   *storage.TokenLedger
	now      int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	agents := identity.NewEngine()
	agents.SetState(storage.NewIdentityStore())

	listings := listing.NewEngine(agents)
	listings.SetState(storage.NewListingStore())

	tokens := storage.NewTokenLedger()
	tokens.SetSelf(marketAddr)

	m := market.NewEngine(listings, agents, tokens)
	m.SetState(storage.NewMarketStore(adminAddr))
	m.SetSelfAddress(marketAddr)

	d := NewEngine(m, listings)
	d.SetState(storage.NewDisputeStore(moduleOwner))
	d.SetSelfAddress(moduleSelf)

	m.SetDisputeModuleClient(d)
	require.NoError(t, m.SetDisputeModule(adminAddr, moduleSelf))
	require.NoError(t, d.SetResolver(moduleOwner, resolverAddr, true))

	h := &harness{t: t, agents: agents, listings: listings, market: m, disputes: d, tokens: tokens, now: 1_000_000}
	now := func() int64 { return h.now }
	m.SetNowFunc(now)
	d.SetNowFunc(now)
	return h
}

func (h *harness) advance(seconds int64) { h.now += seconds }

func (h *harness) submittedTask(seller, buyer [20]byte, challengeWindow int64) uint64 {
	h.t.Helper()
	a, err := h.agents.RegisterAgent(seller, "ipfs://agent")
	require.NoError(h.t, err)

	pricing := listing.Pricing{
		PaymentToken: "NHB",
		BasePrice:    big.NewInt(100),
		UnitPrice:    big.NewInt(10),
		MinUnits:     1,
		MaxUnits:     10,
	}
	policy := listing.Policy{
		ChallengeWindowSec: challengeWindow,
		DeliveryWindowSec:  7200,
	}
	l, err := h.listings.CreateListing(seller, a.ID, "ipfs://listing", pricing, policy)
	require.NoError(h.t, err)
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))

	task, err := h.market.PostTask(buyer, l.ID, "ipfs://task", 1)
	require.NoError(h.t, err)
	task, err = h.market.AcceptTask(seller, task.ID)
	require.NoError(h.t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(h.t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(h.t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{9})
	require.NoError(h.t, err)
	return task.ID
}

func TestOpenDisputeRequiresBuyer(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	stranger := addr(3)
	taskID := h.submittedTask(seller, buyer, 3600)

	err := h.disputes.OpenDispute(taskID, stranger, "ipfs://dispute")
	require.ErrorIs(t, err, ErrNotBuyer)

	require.NoError(t, h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute"))

	task, err := h.market.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, market.StatusDisputed, task.Status)
}

func TestOpenDisputeRejectedAtChallengeWindowBoundary(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	taskID := h.submittedTask(seller, buyer, 3600)

	h.advance(3600)
	err := h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute")
	require.ErrorIs(t, err, ErrChallengeWindowOpen)

	_, err = h.market.SettleAfterTimeout(taskID)
	require.NoError(t, err, "timeout settlement should succeed at the same instant")
}

func TestOpenDisputeRejectsDoubleOpen(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	taskID := h.submittedTask(seller, buyer, 3600)

	require.NoError(t, h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute"))
	err := h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute-again")
	require.ErrorIs(t, err, ErrAlreadyOpened)
}

func TestResolveDisputeRequiresApprovedResolver(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	stranger := addr(3)
	taskID := h.submittedTask(seller, buyer, 3600)

	require.NoError(t, h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute"))
	err := h.disputes.ResolveDispute(stranger, taskID, OutcomeSplit, "ipfs://resolution")
	require.ErrorIs(t, err, ErrNotResolver)
}

func TestResolveDisputeSplitSettlesMarket(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	taskID := h.submittedTask(seller, buyer, 3600)

	require.NoError(t, h.disputes.OpenDispute(taskID, buyer, "ipfs://dispute"))
	require.NoError(t, h.disputes.ResolveDispute(resolverAddr, taskID, OutcomeSplit, "ipfs://resolution"))

	task, err := h.market.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, market.StatusSettled, task.Status)
	require.Equal(t, market.PathDisputeSplit, task.SettlementPath)

	record, err := h.disputes.GetDisputeRecord(taskID)
	require.NoError(t, err)
	require.True(t, record.Resolved)
	require.Equal(t, OutcomeSplit, record.Outcome)

	err = h.disputes.ResolveDispute(resolverAddr, taskID, OutcomeSplit, "ipfs://again")
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

// TestResolveDisputeReconstructsRecordAfterModuleHandoff covers the
// documented upgrade continuity case: a new dispute module instance that
// never observed openDispute for a task can still resolve it once the
// market itself reports the task as DISPUTED.
func TestResolveDisputeReconstructsRecordAfterModuleHandoff(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	taskID := h.submittedTask(seller, buyer, 3600)

	// Mark disputed directly through the configured module address,
	// bypassing this engine's own OpenDispute bookkeeping, to simulate a
	// record that a fresh module instance never wrote.
	require.NoError(t, h.market.MarkDisputed(moduleSelf, taskID, "ipfs://dispute-via-other-module"))

	_, ok := h.disputes.state.DisputeRecordGet(taskID)
	require.False(t, ok, "expected no pre-existing record for this handoff scenario")

	require.NoError(t, h.disputes.ResolveDispute(resolverAddr, taskID, OutcomeBuyerWins, "ipfs://resolution"))

	task, err := h.market.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, market.PathDisputeBuyerWins, task.SettlementPath)
}

func TestSetResolverOwnerOnly(t *testing.T) {
	h := newHarness(t)
	stranger := addr(7)
	err := h.disputes.SetResolver(stranger, addr(8), true)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestOwnerTransferIsTwoStep(t *testing.T) {
	h := newHarness(t)
	next := addr(6)

	err := h.disputes.AcceptOwner(next)
	require.ErrorIs(t, err, ErrNotPendingOwner)

	require.NoError(t, h.disputes.ProposeOwner(moduleOwner, next))

	err = h.disputes.AcceptOwner(moduleOwner)
	require.ErrorIs(t, err, ErrNotPendingOwner, "original owner must not self-accept")

	require.NoError(t, h.disputes.AcceptOwner(next))

	err = h.disputes.SetResolver(moduleOwner, addr(9), true)
	require.ErrorIs(t, err, ErrNotOwner, "old owner should have lost privileges")
	require.NoError(t, h.disputes.SetResolver(next, addr(9), true))
}
