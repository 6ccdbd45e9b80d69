package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket/native/identity"
	"taskmarket/native/listing"
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
	marketAddr  = addr(0xFF)
	adminAddr   = addr(0xA0)
	disputeAddr = addr(0xD1)
)

// harness wires real identity, listing, and market engines together with an
// in-memory token ledger, mirroring how a host binds the three modules.
type harness struct {
	t        *testing.T
	agents   *identity.Engine
	listings *listing.Engine
	market   *Engine
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

	m := NewEngine(listings, agents, tokens)
	m.SetState(storage.NewMarketStore(adminAddr))
	m.SetSelfAddress(marketAddr)

	h := &harness{t: t, agents: agents, listings: listings, market: m, tokens: tokens, now: 1_000_000}
	m.SetNowFunc(func() int64 { return h.now })
	return h
}

// installDisputeModule sets disputeAddr as the market's dispute module
// collaborator, so tests can drive markDisputed/resolveDispute directly as
// that caller without constructing the full dispute package.
func (h *harness) installDisputeModule() {
	h.t.Helper()
	require.NoError(h.t, h.market.SetDisputeModule(adminAddr, disputeAddr))
}

func (h *harness) advance(seconds int64) { h.now += seconds }

func (h *harness) registerAgent(owner [20]byte) uint64 {
	h.t.Helper()
	a, err := h.agents.RegisterAgent(owner, "ipfs://agent")
	require.NoError(h.t, err)
	return a.ID
}

func (h *harness) createListing(owner [20]byte, agentID uint64, pricing listing.Pricing, policy listing.Policy) uint64 {
	h.t.Helper()
	l, err := h.listings.CreateListing(owner, agentID, "ipfs://listing", pricing, policy)
	require.NoError(h.t, err)
	return l.ID
}

func basicPricing(quoteRequired bool) listing.Pricing {
	return listing.Pricing{
		PaymentToken:  "NHB",
		BasePrice:     big.NewInt(100),
		UnitPrice:     big.NewInt(10),
		MinUnits:      1,
		MaxUnits:      10,
		QuoteRequired: quoteRequired,
	}
}

func basicPolicy(bondBps uint32) listing.Policy {
	return listing.Policy{
		ChallengeWindowSec: 3600,
		DeliveryWindowSec:  7200,
		SellerBondBps:      bondBps,
	}
}

// TestHappyPathWithQuote reproduces the §8 scenario 1: explicit quote,
// funding, acceptance, submission, buyer acceptance.
func TestHappyPathWithQuote(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)

	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(true), basicPolicy(0))

	h.tokens.Mint("NHB", buyer, big.NewInt(10_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 4)
	require.NoError(t, err)

	task, err = h.market.ProposeQuote(seller, task.ID, 4, big.NewInt(140), 0)
	require.NoError(t, err)
	require.Zero(t, task.QuotedTotalPrice.Cmp(big.NewInt(140)))

	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{1})
	require.NoError(t, err)
	final, err := h.market.AcceptSubmission(buyer, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, final.Status)
	require.Equal(t, PathAccepted, final.SettlementPath)

	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", buyer).Cmp(big.NewInt(9_860)))
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", seller).Cmp(big.NewInt(140)))
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", marketAddr).Sign())
}

// TestSilentTimeoutSettlement reproduces §8 scenario 2: implicit quote,
// buyer silence past the challenge window, permissionless settlement.
func TestSilentTimeoutSettlement(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)

	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(false), basicPolicy(0))
	h.tokens.Mint("NHB", buyer, big.NewInt(10_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 1)
	require.NoError(t, err)
	task, err = h.market.AcceptTask(seller, task.ID)
	require.NoError(t, err)
	require.Zero(t, task.QuotedTotalPrice.Cmp(big.NewInt(110)))

	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{2})
	require.NoError(t, err)

	_, err = h.market.SettleAfterTimeout(task.ID)
	require.ErrorIs(t, err, ErrChallengeWindowActive)

	h.advance(3601)
	final, err := h.market.SettleAfterTimeout(task.ID)
	require.NoError(t, err, "any caller, e.g. a permissionless relayer, may trigger this")
	require.Equal(t, PathTimeout, final.SettlementPath)
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", seller).Cmp(big.NewInt(110)))
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", marketAddr).Sign())
}

func TestSettlementBoundaryAtDeliveryWindow(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(false), basicPolicy(0))
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 1)
	require.NoError(t, err)
	task, err = h.market.AcceptTask(seller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)

	h.advance(7200)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{3})
	require.ErrorIs(t, err, ErrDeliveryWindowExpired)

	_, err = h.market.CancelForNonDelivery(buyer, task.ID)
	require.NoError(t, err, "non-delivery cancellation enables at the same boundary")
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", buyer).Cmp(big.NewInt(1_000)))
}

// TestDisputeSplitOddAmount asserts the deterministic floor-rounding rule:
// odd funded amounts leave the residue with the seller.
func TestDisputeSplitOddAmount(t *testing.T) {
	buyerPayout, sellerPayout, bondPayout := computePayouts(big.NewInt(3), big.NewInt(0), PathDisputeSplit)
	require.Zero(t, buyerPayout.Cmp(big.NewInt(1)))
	require.Zero(t, sellerPayout.Cmp(big.NewInt(2)))
	require.Zero(t, bondPayout.Sign())
}

// TestDisputeBuyerWinsWithBond reproduces §8 scenario 4.
func TestDisputeBuyerWinsWithBond(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(true), basicPolicy(5000))
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))
	h.tokens.Mint("NHB", seller, big.NewInt(1_000))
	h.installDisputeModule()

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 2)
	require.NoError(t, err)
	task, err = h.market.ProposeQuote(seller, task.ID, 2, big.NewInt(120), 0)
	require.NoError(t, err)
	_, err = h.market.FundSellerBond(seller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{4})
	require.NoError(t, err)
	require.NoError(t, h.market.MarkDisputed(disputeAddr, task.ID, "ipfs://dispute"))

	buyerBefore := h.tokens.BalanceOfSymbol("NHB", buyer)
	final, err := h.market.ResolveDispute(disputeAddr, task.ID, PathDisputeBuyerWins)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, final.Status)

	buyerAfter := h.tokens.BalanceOfSymbol("NHB", buyer)
	delta := new(big.Int).Sub(buyerAfter, buyerBefore)
	require.Zero(t, delta.Cmp(big.NewInt(180)), "buyer should gain 120 escrow + 60 bond")
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", marketAddr).Sign())
}

// TestNFTTransferMidTaskDoesNotRedirect reproduces §8 scenario 5: the
// snapshotted seller, not current agent ownership, governs submission.
func TestNFTTransferMidTaskDoesNotRedirect(t *testing.T) {
	h := newHarness(t)
	originalSeller := addr(1)
	newOwner := addr(9)
	buyer := addr(2)
	agentID := h.registerAgent(originalSeller)
	listingID := h.createListing(originalSeller, agentID, basicPricing(false), basicPolicy(0))
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 1)
	require.NoError(t, err)
	task, err = h.market.AcceptTask(originalSeller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)

	require.NoError(t, h.agents.TransferAgent(originalSeller, agentID, newOwner))

	_, err = h.market.SubmitDeliverable(newOwner, task.ID, "ipfs://artifact", [32]byte{5})
	require.ErrorIs(t, err, ErrNotSeller)

	_, err = h.market.SubmitDeliverable(originalSeller, task.ID, "ipfs://artifact", [32]byte{5})
	require.NoError(t, err, "original seller should still be able to submit")

	final, err := h.market.AcceptSubmission(buyer, task.ID)
	require.NoError(t, err)
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", originalSeller).Cmp(big.NewInt(110)))
	require.Equal(t, originalSeller, final.Seller, "seller snapshot must remain the original owner")
}

func TestCancelPreActivationRefundsExactly(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(true), basicPolicy(2500))
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))
	h.tokens.Mint("NHB", seller, big.NewInt(1_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 2)
	require.NoError(t, err)
	task, err = h.market.ProposeQuote(seller, task.ID, 2, big.NewInt(120), 0)
	require.NoError(t, err)
	_, err = h.market.FundSellerBond(seller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)

	buyerBefore := h.tokens.BalanceOfSymbol("NHB", buyer)
	sellerBefore := h.tokens.BalanceOfSymbol("NHB", seller)
	require.NoError(t, h.market.CancelTask(buyer, task.ID))

	wantBuyer := new(big.Int).Add(buyerBefore, big.NewInt(120))
	wantSeller := new(big.Int).Add(sellerBefore, big.NewInt(30))
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", buyer).Cmp(wantBuyer), "buyer refunded 120 escrow")
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", seller).Cmp(wantSeller), "bond funder refunded 30")
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", marketAddr).Sign())
}

func TestPostDisputeTimeoutSettlesSellerWinsSplit(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	policy := basicPolicy(2500)
	policy.PostDisputeWindowSec = 300
	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(true), policy)
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))
	h.tokens.Mint("NHB", seller, big.NewInt(1_000))
	h.installDisputeModule()

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 2)
	require.NoError(t, err)
	task, err = h.market.ProposeQuote(seller, task.ID, 2, big.NewInt(120), 0)
	require.NoError(t, err)
	_, err = h.market.FundSellerBond(seller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{6})
	require.NoError(t, err)
	require.NoError(t, h.market.MarkDisputed(disputeAddr, task.ID, "ipfs://dispute"))

	_, err = h.market.SettleAfterPostDisputeTimeout(task.ID)
	require.ErrorIs(t, err, ErrPostDisputeActive)

	h.advance(301)
	final, err := h.market.SettleAfterPostDisputeTimeout(task.ID)
	require.NoError(t, err)
	require.Equal(t, PathPostDisputeTimeout, final.SettlementPath)
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", seller).Cmp(big.NewInt(1_000-30+120+30)))
	require.Zero(t, h.tokens.BalanceOfSymbol("NHB", buyer).Cmp(big.NewInt(1_000-120)))
}

func TestDoubleSettleRejected(t *testing.T) {
	h := newHarness(t)
	seller := addr(1)
	buyer := addr(2)
	agentID := h.registerAgent(seller)
	listingID := h.createListing(seller, agentID, basicPricing(false), basicPolicy(0))
	h.tokens.Mint("NHB", buyer, big.NewInt(1_000))

	task, err := h.market.PostTask(buyer, listingID, "ipfs://task", 1)
	require.NoError(t, err)
	task, err = h.market.AcceptTask(seller, task.ID)
	require.NoError(t, err)
	_, err = h.market.FundTask(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.AcceptQuote(buyer, task.ID)
	require.NoError(t, err)
	_, err = h.market.SubmitDeliverable(seller, task.ID, "ipfs://artifact", [32]byte{7})
	require.NoError(t, err)
	_, err = h.market.AcceptSubmission(buyer, task.ID)
	require.NoError(t, err)

	_, err = h.market.AcceptSubmission(buyer, task.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
