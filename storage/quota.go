package storage

import (
	"strconv"
	"sync"

	nativecommon "taskmarket/native/common"
)

// QuotaStore is an in-memory implementation of nativecommon.Store, backing
// the per-caller request/volume quotas enforced at the RPC gateway.
type QuotaStore struct {
	mu      sync.Mutex
	buckets map[string]nativecommon.QuotaNow
}

// NewQuotaStore constructs an empty quota store.
func NewQuotaStore() *QuotaStore {
	return &QuotaStore{buckets: make(map[string]nativecommon.QuotaNow)}
}

func quotaKey(module string, epoch uint64, addr []byte) string {
	return module + ":" + strconv.FormatUint(epoch, 10) + ":" + string(addr)
}

// Load returns the persisted counters for module/epoch/addr, if any.
func (s *QuotaStore) Load(module string, epoch uint64, addr []byte) (nativecommon.QuotaNow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.buckets[quotaKey(module, epoch, addr)]
	return v, ok, nil
}

// Save persists counters for module/epoch/addr.
func (s *QuotaStore) Save(module string, epoch uint64, addr []byte, counters nativecommon.QuotaNow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[quotaKey(module, epoch, addr)] = counters
	return nil
}
