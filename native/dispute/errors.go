package dispute

import "errors"

var (
	ErrNotBuyer        = errors.New("dispute: caller is not the task's buyer")
	ErrNotResolver      = errors.New("dispute: caller is not an approved resolver")
	ErrNotOwner         = errors.New("dispute: caller is not the module owner")
	ErrNotPendingOwner  = errors.New("dispute: caller is not the pending owner")
	ErrAlreadyOpened    = errors.New("dispute: record already opened")
	ErrNotOpened        = errors.New("dispute: record not yet opened")
	ErrAlreadyResolved  = errors.New("dispute: record already resolved")
	ErrTaskNotSubmitted = errors.New("dispute: task is not in a disputable state")
	ErrChallengeWindowOpen = errors.New("dispute: challenge window has elapsed")
	ErrURITooLong       = errors.New("dispute: uri exceeds max length")
	ErrInvalidOutcome   = errors.New("dispute: outcome is not a valid resolution")
	ErrRecordNotFound   = errors.New("dispute: record not found")
	ErrNilState         = errors.New("dispute: state not configured")
	ErrNilCollaborator  = errors.New("dispute: required collaborator not configured")
)
