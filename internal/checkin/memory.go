package checkin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// MemoryStore is an in-process ticket store with the same
// compare-and-set semantics as the MySQL repository.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]model.Ticket
	byNumber map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]model.Ticket{}, byNumber: map[string]string{}}
}

// Create inserts t as is.
func (s *MemoryStore) Create(_ context.Context, t model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	if t.Number != "" {
		s.byNumber[t.Number] = t.ID
	}
	return nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return t, nil
}

// GetByNumber implements Store.
func (s *MemoryStore) GetByNumber(_ context.Context, number string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNumber[number]
	if !ok {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return s.byID[id], nil
}

// Transition implements Store.
func (s *MemoryStore) Transition(_ context.Context, tr model.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[tr.TicketID]
	if !ok || t.Version != tr.ExpectedVersion || t.Status != tr.From {
		return false, nil
	}
	s.byID[t.ID] = tr.Apply(t)
	return true, nil
}

// ListReservedBefore returns up to limit RESERVED tickets created
// before cutoff, oldest first.
func (s *MemoryStore) ListReservedBefore(_ context.Context, cutoff time.Time, limit int) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.byID {
		if t.Status == model.TicketReserved && t.CreatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
