package storage

import (
	"sync"

	"taskmarket/native/dispute"
)

// DisputeStore is a concurrency-safe in-memory State implementation for the
// dispute module: per-task records, module ownership, and the resolver set.
type DisputeStore struct {
	mu        sync.Mutex
	records   map[uint64]*dispute.DisputeRecord
	resolvers map[[20]byte]bool

	owner        [20]byte
	pendingOwner [20]byte
}

// NewDisputeStore constructs a dispute store whose owner is set to the
// supplied address.
func NewDisputeStore(owner [20]byte) *DisputeStore {
	return &DisputeStore{
		records:   make(map[uint64]*dispute.DisputeRecord),
		resolvers: make(map[[20]byte]bool),
		owner:     owner,
	}
}

// DisputeRecordGet returns a clone of the stored record, if any.
func (s *DisputeStore) DisputeRecordGet(taskID uint64) (*dispute.DisputeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[taskID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// DisputeRecordPut persists a clone of the supplied record.
func (s *DisputeStore) DisputeRecordPut(r *dispute.DisputeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.TaskID] = r.Clone()
	return nil
}

// OwnerGet returns the module's current owner address.
func (s *DisputeStore) OwnerGet() ([20]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, nil
}

// OwnerPut installs a new owner address.
func (s *DisputeStore) OwnerPut(addr [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = addr
	return nil
}

// PendingOwnerGet returns the proposed-but-not-yet-accepted owner address.
func (s *DisputeStore) PendingOwnerGet() ([20]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingOwner, nil
}

// PendingOwnerPut records the proposed owner address.
func (s *DisputeStore) PendingOwnerPut(addr [20]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOwner = addr
	return nil
}

// ResolverGet reports whether addr currently holds resolver status.
func (s *DisputeStore) ResolverGet(addr [20]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvers[addr], nil
}

// ResolverPut grants or revokes resolver status.
func (s *DisputeStore) ResolverPut(addr [20]byte, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if approved {
		s.resolvers[addr] = true
	} else {
		delete(s.resolvers, addr)
	}
	return nil
}
