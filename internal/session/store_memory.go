package session

import (
	"context"
	"sync"
	"time"

	"ticketeer/pkg/platform/sentinel"
)

// MemoryStore keeps sessions in memory for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sess
	s.sessions[sess.TokenHash] = &copied
	return nil
}

func (s *MemoryStore) Find(_ context.Context, tokenHash string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sess.Expired(now) {
		delete(s.sessions, tokenHash)
		return nil, sentinel.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) DeleteByAdmin(_ context.Context, adminID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped int64
	for hash, sess := range s.sessions {
		if sess.AdminID == adminID {
			delete(s.sessions, hash)
			dropped++
		}
	}
	return dropped, nil
}
