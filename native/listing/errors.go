package listing

import "errors"

var (
	// ErrNotFound is returned when a listing id has never been created.
	ErrNotFound = errors.New("listing: not found")
	// ErrNotAuthorized is returned when the caller fails the bound agent's
	// authorization check.
	ErrNotAuthorized = errors.New("listing: caller not authorized for agent")
	// ErrURITooLong is returned when a URI exceeds MaxURILength bytes.
	ErrURITooLong = errors.New("listing: uri exceeds max length")
	// ErrPaymentTokenRequired is returned when pricing omits a payment token.
	ErrPaymentTokenRequired = errors.New("listing: payment token required")
	// ErrUnitsOutOfRange is returned when minUnits/maxUnits violate 1<=min<=max.
	ErrUnitsOutOfRange = errors.New("listing: unit bounds out of range")
	// ErrBondBpsOutOfRange is returned when sellerBondBps exceeds 10000.
	ErrBondBpsOutOfRange = errors.New("listing: seller bond bps out of range")
	// ErrChallengeWindowRequired is returned when challengeWindowSec <= 0.
	ErrChallengeWindowRequired = errors.New("listing: challenge window must be positive")
	// ErrDeliveryWindowRequired is returned when deliveryWindowSec <= 0.
	ErrDeliveryWindowRequired = errors.New("listing: delivery window must be positive")
	// ErrNilState is returned when the engine is used before SetState.
	ErrNilState = errors.New("listing: state not configured")
)
