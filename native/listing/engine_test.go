package listing_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket/native/listing"
	"taskmarket/storage"
)

type stubAgents struct {
	owner      [20]byte
	authorized map[[20]byte]bool
}

func (s *stubAgents) OwnerOf(agentID uint64) ([20]byte, error) { return s.owner, nil }
func (s *stubAgents) GetApproved(agentID uint64) ([20]byte, error) {
	return [20]byte{}, nil
}
func (s *stubAgents) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	return false, nil
}
func (s *stubAgents) IsAuthorized(agentID uint64, caller [20]byte) (bool, error) {
	return s.authorized[caller], nil
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func validPricing() listing.Pricing {
	return listing.Pricing{
		PaymentToken: "NHB",
		BasePrice:    big.NewInt(100),
		UnitPrice:    big.NewInt(10),
		MinUnits:     1,
		MaxUnits:     10,
	}
}

func validPolicy() listing.Policy {
	return listing.Policy{
		ChallengeWindowSec: 3600,
		DeliveryWindowSec:  86400,
		SellerBondBps:      500,
	}
}

func newTestEngine(owner [20]byte, authorizedCallers ...[20]byte) *listing.Engine {
	authorized := make(map[[20]byte]bool)
	authorized[owner] = true
	for _, c := range authorizedCallers {
		authorized[c] = true
	}
	e := listing.NewEngine(&stubAgents{owner: owner, authorized: authorized})
	e.SetState(storage.NewListingStore())
	return e
}

func TestCreateListingRequiresAgentAuthorization(t *testing.T) {
	owner := addr(1)
	stranger := addr(2)
	e := newTestEngine(owner)

	_, err := e.CreateListing(stranger, 1, "ipfs://listing", validPricing(), validPolicy())
	require.ErrorIs(t, err, listing.ErrNotAuthorized)

	l, err := e.CreateListing(owner, 1, "ipfs://listing", validPricing(), validPolicy())
	require.NoError(t, err)
	require.True(t, l.Active, "expected new listing to default active")
}

func TestCreateListingValidatesPricingAndPolicy(t *testing.T) {
	owner := addr(1)
	e := newTestEngine(owner)

	badPricing := validPricing()
	badPricing.PaymentToken = ""
	_, err := e.CreateListing(owner, 1, "ipfs://listing", badPricing, validPolicy())
	require.ErrorIs(t, err, listing.ErrPaymentTokenRequired)

	badUnits := validPricing()
	badUnits.MinUnits = 5
	badUnits.MaxUnits = 1
	_, err = e.CreateListing(owner, 1, "ipfs://listing", badUnits, validPolicy())
	require.ErrorIs(t, err, listing.ErrUnitsOutOfRange)

	badBps := validPolicy()
	badBps.SellerBondBps = 10_001
	_, err = e.CreateListing(owner, 1, "ipfs://listing", validPricing(), badBps)
	require.ErrorIs(t, err, listing.ErrBondBpsOutOfRange)

	badWindow := validPolicy()
	badWindow.ChallengeWindowSec = 0
	_, err = e.CreateListing(owner, 1, "ipfs://listing", validPricing(), badWindow)
	require.ErrorIs(t, err, listing.ErrChallengeWindowRequired)
}

func TestUpdateListingOnlyChangesURIAndActive(t *testing.T) {
	owner := addr(1)
	e := newTestEngine(owner)
	l, err := e.CreateListing(owner, 1, "ipfs://original", validPricing(), validPolicy())
	require.NoError(t, err)

	require.NoError(t, e.UpdateListing(owner, l.ID, "ipfs://updated", false))

	got, err := e.GetListing(l.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://updated", got.URI)
	require.False(t, got.Active, "expected listing to be deactivated")
	require.Zero(t, got.Pricing.BasePrice.Cmp(l.Pricing.BasePrice), "pricing must not change on update")
}

func TestGetListingNotFound(t *testing.T) {
	e := newTestEngine(addr(1))
	_, err := e.GetListing(42)
	require.ErrorIs(t, err, listing.ErrNotFound)
}
