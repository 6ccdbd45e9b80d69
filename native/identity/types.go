package identity

import (
	"fmt"
	"strings"
)

// MaxURILength bounds any URI persisted on an agent record.
const MaxURILength = 2048

// Agent is a transferable, non-fungible worker identity. Ownership transfers
// freely; a transfer clears any single-address approval recorded for the id.
type Agent struct {
	ID        uint64
	Owner     [20]byte
	Approved  [20]byte
	URI       string
	CreatedAt int64
	UpdatedAt int64
}

// Clone returns a deep copy safe for callers to mutate.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// SanitizeAgent validates and normalises the supplied agent record, returning
// a cloned instance. The input is never mutated.
func SanitizeAgent(a *Agent) (*Agent, error) {
	if a == nil {
		return nil, fmt.Errorf("identity: nil agent")
	}
	clone := a.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("identity: agent id must be non-zero")
	}
	if clone.Owner == ([20]byte{}) {
		return nil, fmt.Errorf("identity: agent owner must not be zero address")
	}
	if len(clone.URI) > MaxURILength {
		return nil, ErrURITooLong
	}
	if clone.UpdatedAt != 0 && clone.UpdatedAt < clone.CreatedAt {
		return nil, fmt.Errorf("identity: updatedAt before createdAt")
	}
	return clone, nil
}

// NormalizeURI trims the supplied URI and enforces the length cap.
func NormalizeURI(uri string) (string, error) {
	trimmed := strings.TrimSpace(uri)
	if len(trimmed) > MaxURILength {
		return "", ErrURITooLong
	}
	return trimmed, nil
}
