package identity

import "errors"

var (
	// ErrUnknownAgent is returned when an operation references an agent id
	// that has never been registered.
	ErrUnknownAgent = errors.New("identity: unknown agent")
	// ErrNotAuthorized is returned when the caller is neither the owner, the
	// single-approved address, nor an approved operator for the agent.
	ErrNotAuthorized = errors.New("identity: caller not authorized")
	// ErrURITooLong is returned when a URI exceeds MaxURILength bytes.
	ErrURITooLong = errors.New("identity: uri exceeds max length")
	// ErrNilState is returned when the engine is used before SetState.
	ErrNilState = errors.New("identity: state not configured")
)
