package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ CounterStore = (*MemoryStore)(nil)

type bucket struct {
	count    int64
	expireAt time.Time
}

// MemoryStore is a process-local CounterStore. Expired buckets are
// pruned at most once a minute.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastPrune time.Time
}

// NewMemoryStore returns an empty store using time.Now.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket), now: time.Now}
}

// WithClock replaces the store's time source and returns s.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Increment bumps key, starting a fresh bucket when absent or expired.
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastPrune) >= time.Minute {
		for k, b := range s.buckets {
			if !now.Before(b.expireAt) {
				delete(s.buckets, k)
			}
		}
		s.lastPrune = now
	}

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.expireAt) {
		b = &bucket{expireAt: now.Add(ttl)}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
