package market

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxURILength bounds any URI persisted on a task.
const MaxURILength = 2048

// BpsDenominator is the fixed-point denominator for all basis-point fields.
const BpsDenominator = 10_000

// DisputeModuleUpdateDelay is the timelock applied to privileged dispute
// module swaps, approximately one day of host wall-clock seconds.
const DisputeModuleUpdateDelay int64 = 24 * 60 * 60

// Status enumerates the task lifecycle. SETTLED and CANCELLED are terminal.
type Status uint8

const (
	StatusOpen Status = iota
	StatusQuoted
	StatusActive
	StatusSubmitted
	StatusDisputed
	StatusSettled
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusQuoted, StatusActive, StatusSubmitted, StatusDisputed, StatusSettled, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further mutating transition may succeed.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusQuoted:
		return "QUOTED"
	case StatusActive:
		return "ACTIVE"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusDisputed:
		return "DISPUTED"
	case StatusSettled:
		return "SETTLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// SettlementPath discriminates which of the terminal transitions produced a
// SETTLED task, driving the payout split in §4.3.2.
type SettlementPath string

const (
	PathAccepted            SettlementPath = "ACCEPTED"
	PathTimeout             SettlementPath = "TIMEOUT"
	PathPostDisputeTimeout  SettlementPath = "POST_DISPUTE_TIMEOUT"
	PathDisputeSellerWins   SettlementPath = "DISPUTE_SELLER_WINS"
	PathDisputeBuyerWins    SettlementPath = "DISPUTE_BUYER_WINS"
	PathDisputeSplit        SettlementPath = "DISPUTE_SPLIT"
	PathDisputeCancel       SettlementPath = "DISPUTE_CANCEL"
)

// ValidDisputePath reports whether path is one of the four outcomes the
// dispute module may supply to resolveDispute.
func ValidDisputePath(path SettlementPath) bool {
	switch path {
	case PathDisputeSellerWins, PathDisputeBuyerWins, PathDisputeSplit, PathDisputeCancel:
		return true
	default:
		return false
	}
}

// Task is a buyer's purchase of work against a listing. It traverses the
// seven-state machine described in §4.3.
type Task struct {
	ID      uint64
	ListingID uint64

	// immutable-after-post
	AgentID       uint64
	Buyer         [20]byte
	PaymentToken  string
	TaskURI       string
	ProposedUnits uint64

	// filled during quoting
	QuotedUnits      uint64
	QuotedTotalPrice *big.Int
	QuoteExpiry      int64

	// escrow custody
	FundedAmount *big.Int
	SellerBond   *big.Int
	BondFunder   [20]byte

	// seller snapshot: the agent owner at the instant the quote was
	// accepted. Never re-derived from current agent ownership afterward.
	Seller [20]byte

	// deliverable
	ArtifactURI  string
	ArtifactHash [32]byte

	// timestamps
	ActivatedAt int64
	SubmittedAt int64
	DisputedAt  int64

	Status         Status
	SettlementPath SettlementPath
	Settled        bool
}

// Clone returns a deep copy safe for callers to mutate.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.QuotedTotalPrice != nil {
		clone.QuotedTotalPrice = new(big.Int).Set(t.QuotedTotalPrice)
	}
	if t.FundedAmount != nil {
		clone.FundedAmount = new(big.Int).Set(t.FundedAmount)
	} else {
		clone.FundedAmount = big.NewInt(0)
	}
	if t.SellerBond != nil {
		clone.SellerBond = new(big.Int).Set(t.SellerBond)
	} else {
		clone.SellerBond = big.NewInt(0)
	}
	return &clone
}

// SanitizeTask validates and normalises the supplied task, returning a
// cloned instance. The input is never mutated.
func SanitizeTask(t *Task) (*Task, error) {
	if t == nil {
		return nil, fmt.Errorf("market: nil task")
	}
	clone := t.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("market: task id must be non-zero")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid task status %d", clone.Status)
	}
	if len(clone.TaskURI) > MaxURILength {
		return nil, ErrURITooLong
	}
	if len(clone.ArtifactURI) > MaxURILength {
		return nil, ErrURITooLong
	}
	if clone.FundedAmount.Sign() < 0 {
		return nil, fmt.Errorf("market: funded amount must be non-negative")
	}
	if clone.SellerBond.Sign() < 0 {
		return nil, fmt.Errorf("market: seller bond must be non-negative")
	}
	clone.PaymentToken = strings.ToUpper(strings.TrimSpace(clone.PaymentToken))
	return clone, nil
}

// RequiredBond returns floor(quotedTotalPrice * sellerBondBps / BpsDenominator).
func RequiredBond(quotedTotalPrice *big.Int, sellerBondBps uint32) *big.Int {
	if quotedTotalPrice == nil || sellerBondBps == 0 {
		return big.NewInt(0)
	}
	bond := new(big.Int).Mul(quotedTotalPrice, big.NewInt(int64(sellerBondBps)))
	bond.Div(bond, big.NewInt(BpsDenominator))
	return bond
}

func normalizeURI(uri string) (string, error) {
	trimmed := strings.TrimSpace(uri)
	if len(trimmed) > MaxURILength {
		return "", ErrURITooLong
	}
	return trimmed, nil
}
