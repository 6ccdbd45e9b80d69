package listing

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxURILength bounds any URI persisted on a listing.
const MaxURILength = 2048

// BpsDenominator is the fixed-point denominator used for all basis-point
// fields across the marketplace.
const BpsDenominator = 10_000

// Pricing captures the immutable cost model bound to a listing at creation
// time. unitType is an opaque label chosen by the listing creator; the
// market never interprets its contents.
type Pricing struct {
	PaymentToken  string
	BasePrice     *big.Int
	UnitType      [32]byte
	UnitPrice     *big.Int
	MinUnits      uint64
	MaxUnits      uint64
	QuoteRequired bool
}

// Clone returns a deep copy safe for callers to mutate.
func (p Pricing) Clone() Pricing {
	clone := p
	if p.BasePrice != nil {
		clone.BasePrice = new(big.Int).Set(p.BasePrice)
	} else {
		clone.BasePrice = big.NewInt(0)
	}
	if p.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(p.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	return clone
}

// Policy captures the immutable timing and bonding rules bound to a listing.
type Policy struct {
	ChallengeWindowSec   int64
	PostDisputeWindowSec int64
	DeliveryWindowSec    int64
	SellerBondBps        uint32
}

// Listing is a per-agent offering fixing pricing and policy. Only URI and
// Active are mutable after creation; the agent binding never changes.
type Listing struct {
	ID        uint64
	AgentID   uint64
	URI       string
	Pricing   Pricing
	Policy    Policy
	Active    bool
	CreatedAt int64
	UpdatedAt int64
}

// Clone returns a deep copy safe for callers to mutate.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Pricing = l.Pricing.Clone()
	return &clone
}

// SanitizeListing validates the supplied listing definition and returns a
// cloned, canonicalised instance. The input is never mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("listing: nil listing")
	}
	clone := l.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("listing: id must be non-zero")
	}
	if clone.AgentID == 0 {
		return nil, fmt.Errorf("listing: agent id must be non-zero")
	}
	clone.URI = strings.TrimSpace(clone.URI)
	if len(clone.URI) > MaxURILength {
		return nil, ErrURITooLong
	}
	if err := validatePricing(clone.Pricing); err != nil {
		return nil, err
	}
	if err := validatePolicy(clone.Policy); err != nil {
		return nil, err
	}
	if clone.UpdatedAt != 0 && clone.UpdatedAt < clone.CreatedAt {
		return nil, fmt.Errorf("listing: updatedAt before createdAt")
	}
	return clone, nil
}

func validatePricing(p Pricing) error {
	if strings.TrimSpace(p.PaymentToken) == "" {
		return ErrPaymentTokenRequired
	}
	if p.MinUnits == 0 {
		return ErrUnitsOutOfRange
	}
	if p.MinUnits > p.MaxUnits {
		return ErrUnitsOutOfRange
	}
	if p.BasePrice == nil || p.BasePrice.Sign() < 0 {
		return fmt.Errorf("listing: base price must be non-negative")
	}
	if p.UnitPrice == nil || p.UnitPrice.Sign() < 0 {
		return fmt.Errorf("listing: unit price must be non-negative")
	}
	return nil
}

func validatePolicy(p Policy) error {
	if p.SellerBondBps > BpsDenominator {
		return ErrBondBpsOutOfRange
	}
	if p.ChallengeWindowSec <= 0 {
		return ErrChallengeWindowRequired
	}
	if p.DeliveryWindowSec <= 0 {
		return ErrDeliveryWindowRequired
	}
	if p.PostDisputeWindowSec < 0 {
		return fmt.Errorf("listing: post-dispute window must be non-negative")
	}
	return nil
}
