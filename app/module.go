// Package app wires the four native modules together into a single
// deployable unit: identity, listing, market, and dispute, bound to their
// in-memory storage backends and to each other's collaborator interfaces.
// This is the leaf-first composition root the system overview in the
// specification describes: identity has no dependencies, listing depends on
// identity, market depends on both plus a token registry, and dispute
// depends on market and listing while the market holds a capability back
// into dispute.
package app

import (
	"taskmarket/native/dispute"
	"taskmarket/native/identity"
	"taskmarket/native/listing"
	"taskmarket/native/market"
	"taskmarket/observability"
	"taskmarket/storage"
)

// Module bundles the wired engines and their backing stores, and the
// addresses a deployment needs to drive them from the outside: the market's
// own custody address and the dispute module's self-reporting address.
type Module struct {
	Identity *identity.Engine
	Listing  *listing.Engine
	Market   *market.Engine
	Dispute  *dispute.Engine

	Tokens *storage.TokenLedger
	Pauses *storage.PauseStore

	MarketSelf    [20]byte
	DisputeSelf   [20]byte
}

// New constructs a fully wired Module. admin becomes the task market's
// admin and the dispute module's owner; marketSelf and disputeSelf are the
// addresses the market and dispute engines present as "this account" to
// their token and callback collaborators respectively.
func New(admin, marketSelf, disputeSelf [20]byte) *Module {
	pauses := storage.NewPauseStore()
	tokens := storage.NewTokenLedger()
	tokens.SetSelf(marketSelf)

	identityEngine := identity.NewEngine()
	identityEngine.SetState(storage.NewIdentityStore())
	identityEngine.SetPauses(pauses)

	listingEngine := listing.NewEngine(identityEngine)
	listingEngine.SetState(storage.NewListingStore())
	listingEngine.SetPauses(pauses)

	marketEngine := market.NewEngine(listingEngine, identityEngine, tokens)
	marketEngine.SetState(storage.NewMarketStore(admin))
	marketEngine.SetPauses(pauses)
	marketEngine.SetSelfAddress(marketSelf)

	disputeEngine := dispute.NewEngine(marketEngine, listingEngine)
	disputeEngine.SetState(storage.NewDisputeStore(admin))
	disputeEngine.SetPauses(pauses)
	disputeEngine.SetSelfAddress(disputeSelf)

	marketEngine.SetDisputeModuleClient(disputeEngine)

	m := &Module{
		Identity:    identityEngine,
		Listing:     listingEngine,
		Market:      marketEngine,
		Dispute:     disputeEngine,
		Tokens:      tokens,
		Pauses:      pauses,
		MarketSelf:  marketSelf,
		DisputeSelf: disputeSelf,
	}
	m.wireMetrics()
	return m
}

// wireMetrics attaches the prometheus-backed event emitters to each engine
// so every state transition increments the task market metrics registry.
// SetEmitter replaces an engine's emitter, so a host that later installs its
// own emitter on an engine stops these metrics for that engine.
func (m *Module) wireMetrics() {
	metrics := observability.TaskMarket()
	emitter := observability.NewMetricsEmitter(metrics)
	m.Market.SetEmitter(emitter)
	m.Dispute.SetEmitter(emitter)
	m.Identity.SetEmitter(emitter)
	m.Listing.SetEmitter(emitter)
}

// RegisterDisputeModule installs the dispute engine's self address as the
// market's configured dispute module. Hosts call this once after New to
// complete the two-sided wiring described in design note "Cyclic
// references between Task Market and Dispute Module": the market only
// accepts markDisputed/resolveDispute calls from this address.
func (m *Module) RegisterDisputeModule(admin [20]byte) error {
	return m.Market.SetDisputeModule(admin, m.DisputeSelf)
}
