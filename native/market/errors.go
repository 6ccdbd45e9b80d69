package market

import "errors"

// Errors are grouped by the taxonomy in §7: authorization, state, input,
// window, custody, and configuration violations. Every observable failure
// is traceable to exactly one of these tags.
var (
	// Authorization failures.
	ErrNotAuthorized       = errors.New("market: caller not authorized")
	ErrNotBuyer            = errors.New("market: caller is not the buyer")
	ErrNotSeller           = errors.New("market: caller is not the snapshotted seller")
	ErrNotAdmin            = errors.New("market: caller is not the admin")
	ErrNotPendingAdmin     = errors.New("market: caller is not the pending admin")
	ErrNotDisputeModule    = errors.New("market: caller is not the dispute module")

	// State violations.
	ErrTaskNotFound         = errors.New("market: task not found")
	ErrInvalidTransition    = errors.New("market: status does not permit this transition")
	ErrAlreadyFunded        = errors.New("market: task already funded")
	ErrBondAlreadyFunded    = errors.New("market: seller bond already funded")
	ErrBondNotFunded        = errors.New("market: required seller bond has not been funded yet")
	ErrNoPendingUpgrade     = errors.New("market: no pending dispute module upgrade")
	ErrSubmissionExists     = errors.New("market: deliverable already submitted")

	// Input violations.
	ErrUnitsOutOfRange  = errors.New("market: units out of range")
	ErrZeroUnits        = errors.New("market: quoted units must be positive")
	ErrAmountMismatch   = errors.New("market: amount does not match required value")
	ErrBondMismatch     = errors.New("market: bond amount does not match required value")
	ErrBondDisabled     = errors.New("market: listing does not require a seller bond")
	ErrURITooLong       = errors.New("market: uri exceeds max length")
	ErrListingInactive  = errors.New("market: listing is not active")
	ErrQuoteRequired    = errors.New("market: listing requires an explicit quote")

	// Window violations.
	ErrQuoteExpired          = errors.New("market: quote has expired")
	ErrChallengeWindowActive = errors.New("market: challenge window has not elapsed")
	ErrChallengeWindowOpen   = errors.New("market: challenge window has elapsed")
	ErrDeliveryWindowActive  = errors.New("market: delivery window has not elapsed")
	ErrDeliveryWindowExpired = errors.New("market: delivery window has elapsed")
	ErrPostDisputeDisabled   = errors.New("market: post-dispute timeout disabled for this listing")
	ErrPostDisputeActive     = errors.New("market: post-dispute window has not elapsed")
	ErrUpgradeNotReady       = errors.New("market: timelocked upgrade activation time not reached")

	// Custody violations.
	ErrCustodyTransferFailed = errors.New("market: payment token transfer failed")
	ErrCustodyDeltaMismatch  = errors.New("market: deposit delta did not match requested amount")
	ErrPayoutExceedsPool     = errors.New("market: payout would exceed the task's funded pool")
	ErrUnknownToken          = errors.New("market: payment token not registered")

	// Configuration violations.
	ErrDisputeModuleNotSet    = errors.New("market: dispute module not configured")
	ErrDisputeModuleUnchanged = errors.New("market: dispute module address unchanged")
	ErrInvalidSettlementPath  = errors.New("market: settlement path not valid for resolveDispute")
	ErrReentrant              = errors.New("market: reentrant call rejected")
	ErrNilState               = errors.New("market: state not configured")
	ErrNilCollaborator        = errors.New("market: required collaborator not configured")
)
