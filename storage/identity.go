// Package storage provides in-memory persistence backends for the task
// market's native modules. Each store implements the narrow State interface
// a package declares for itself, the same shape the engine_test.go mockState
// types in the reference escrow module implement, promoted here to
// production code since this repo does not carry a Merkle-trie backed
// chain state machine of its own.
package storage

import (
	"sync"

	"taskmarket/native/identity"
)

// IdentityStore is a concurrency-safe in-memory State implementation for
// the agent identity module.
type IdentityStore struct {
	mu        sync.Mutex
	agents    map[uint64]*identity.Agent
	operators map[[20]byte]map[[20]byte]bool
	nextID    uint64
}

// NewIdentityStore constructs an empty identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		agents:    make(map[uint64]*identity.Agent),
		operators: make(map[[20]byte]map[[20]byte]bool),
	}
}

// NextAgentID hands out monotonically increasing, non-zero identifiers.
func (s *IdentityStore) NextAgentID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

// AgentPut persists a clone of the supplied agent record.
func (s *IdentityStore) AgentPut(a *identity.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a.Clone()
	return nil
}

// AgentGet returns a clone of the stored agent record, if any.
func (s *IdentityStore) AgentGet(id uint64) (*identity.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// OperatorApprovalGet reports whether operator holds blanket approval over
// all of owner's agents.
func (s *IdentityStore) OperatorApprovalGet(owner, operator [20]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOwner, ok := s.operators[owner]
	if !ok {
		return false, nil
	}
	return byOwner[operator], nil
}

// OperatorApprovalPut grants or revokes blanket operator approval.
func (s *IdentityStore) OperatorApprovalPut(owner, operator [20]byte, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOwner, ok := s.operators[owner]
	if !ok {
		byOwner = make(map[[20]byte]bool)
		s.operators[owner] = byOwner
	}
	if approved {
		byOwner[operator] = true
	} else {
		delete(byOwner, operator)
	}
	return nil
}
