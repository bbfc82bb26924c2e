package payment

import (
	"context"
	"sync"
	"time"

	"ticketeer/pkg/platform/sentinel"
)

// MemoryStore mirrors the conditional semantics of the SQL store under a
// single mutex, which gives tests the same linearizable behavior the
// database's primary key provides in production.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Reservation)}
}

func (s *MemoryStore) Create(_ context.Context, res *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[res.PaymentSessionID]; ok {
		return sentinel.ErrConflict
	}
	copied := *res
	s.rows[res.PaymentSessionID] = &copied
	return nil
}

func (s *MemoryStore) Find(_ context.Context, sessionID string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.rows[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *res
	return &copied, nil
}

func (s *MemoryStore) DeleteIfPendingBefore(_ context.Context, sessionID string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.rows[sessionID]
	if !ok || !res.Pending() || !res.ProcessedAt.Before(cutoff) {
		return false, nil
	}
	delete(s.rows, sessionID)
	return true, nil
}

func (s *MemoryStore) Finalize(_ context.Context, sessionID, attendeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.rows[sessionID]
	if !ok || !res.Pending() {
		return false, nil
	}
	res.AttendeeID = &attendeeID
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sessionID)
	return nil
}
