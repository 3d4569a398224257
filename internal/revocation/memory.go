package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps entries in a process-local map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.RevokedToken
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.RevokedToken)}
}

// Put inserts the entry unless one with the same TokenID exists.
func (s *MemoryStore) Put(_ context.Context, entry model.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.TokenID]; !ok {
		s.entries[entry.TokenID] = entry
	}
	return nil
}

// Exists reports whether tokenID has an entry.
func (s *MemoryStore) Exists(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[tokenID]
	return ok, nil
}

// DeleteExpired removes entries with ExpiresAt before now.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.entries {
		if e.ExpiresAt.Before(now) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
