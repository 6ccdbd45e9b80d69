package rpc

import (
	"errors"
	"net/http"

	"taskmarket/native/dispute"
	"taskmarket/native/identity"
	"taskmarket/native/listing"
	"taskmarket/native/market"
	nativecommon "taskmarket/native/common"
)

// statusFor maps an engine error onto the HTTP status implied by the
// error-taxonomy tag it belongs to: authorization -> 403, state/window/
// configuration -> 409, input -> 400, custody -> 502. Unrecognised errors
// (programmer errors, nil-collaborator wiring bugs) map to 500.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, errInvalidArtifactHash) || errors.Is(err, errInvalidOutcome) {
		return http.StatusBadRequest
	}
	for _, candidate := range authorizationErrors {
		if errors.Is(err, candidate) {
			return http.StatusForbidden
		}
	}
	for _, candidate := range inputErrors {
		if errors.Is(err, candidate) {
			return http.StatusBadRequest
		}
	}
	for _, candidate := range custodyErrors {
		if errors.Is(err, candidate) {
			return http.StatusBadGateway
		}
	}
	for _, candidate := range stateErrors {
		if errors.Is(err, candidate) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

var authorizationErrors = []error{
	market.ErrNotAuthorized, market.ErrNotBuyer, market.ErrNotSeller,
	market.ErrNotAdmin, market.ErrNotPendingAdmin, market.ErrNotDisputeModule,
	identity.ErrNotAuthorized,
	listing.ErrNotAuthorized,
	dispute.ErrNotBuyer, dispute.ErrNotResolver, dispute.ErrNotOwner, dispute.ErrNotPendingOwner,
}

var inputErrors = []error{
	market.ErrUnitsOutOfRange, market.ErrZeroUnits, market.ErrAmountMismatch,
	market.ErrBondMismatch, market.ErrBondDisabled, market.ErrURITooLong,
	market.ErrListingInactive, market.ErrQuoteRequired,
	identity.ErrURITooLong,
	listing.ErrURITooLong, listing.ErrPaymentTokenRequired, listing.ErrUnitsOutOfRange,
	listing.ErrBondBpsOutOfRange, listing.ErrChallengeWindowRequired, listing.ErrDeliveryWindowRequired,
	dispute.ErrURITooLong, dispute.ErrInvalidOutcome,
}

var custodyErrors = []error{
	market.ErrCustodyTransferFailed, market.ErrCustodyDeltaMismatch,
	market.ErrPayoutExceedsPool, market.ErrUnknownToken,
}

var stateErrors = []error{
	market.ErrTaskNotFound, market.ErrInvalidTransition, market.ErrAlreadyFunded,
	market.ErrBondAlreadyFunded, market.ErrBondNotFunded, market.ErrNoPendingUpgrade, market.ErrSubmissionExists,
	market.ErrQuoteExpired, market.ErrChallengeWindowActive, market.ErrChallengeWindowOpen,
	market.ErrDeliveryWindowActive, market.ErrDeliveryWindowExpired,
	market.ErrPostDisputeDisabled, market.ErrPostDisputeActive, market.ErrUpgradeNotReady,
	market.ErrDisputeModuleNotSet, market.ErrDisputeModuleUnchanged,
	market.ErrInvalidSettlementPath, market.ErrReentrant, market.ErrNilState, market.ErrNilCollaborator,
	identity.ErrUnknownAgent, identity.ErrNilState,
	listing.ErrNotFound, listing.ErrNilState,
	dispute.ErrRecordNotFound, dispute.ErrNotOpened, dispute.ErrAlreadyOpened,
	dispute.ErrAlreadyResolved, dispute.ErrTaskNotSubmitted, dispute.ErrChallengeWindowOpen,
	dispute.ErrNilCollaborator, dispute.ErrNilState,
}

type errorBody struct {
	Error string `json:"error"`
}

var errInvalidArtifactHash = errors.New("rpc: artifactHash must be a 32-byte hex digest")
var errInvalidOutcome = errors.New("rpc: outcome must be one of SELLER_WINS, BUYER_WINS, SPLIT, CANCEL")
