package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"ticketeer/pkg/platform/sentinel"
)

// PostgresAttemptStore persists failure counters in login_attempts.
type PostgresAttemptStore struct {
	db *sql.DB
}

func NewPostgresAttemptStore(db *sql.DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

func (s *PostgresAttemptStore) Find(ctx context.Context, ipHash string) (*Attempt, error) {
	var attempt Attempt
	err := s.db.QueryRowContext(ctx, `
		SELECT ip_hash, failure_count, locked_until, last_failure_at
		FROM login_attempts WHERE ip_hash = $1
	`, ipHash).Scan(&attempt.IPHash, &attempt.FailureCount, &attempt.LockedUntil, &attempt.LastFailureAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find login attempt: %w", err)
	}
	return &attempt, nil
}

func (s *PostgresAttemptStore) Upsert(ctx context.Context, attempt *Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_attempts (ip_hash, failure_count, locked_until, last_failure_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_hash) DO UPDATE SET
			failure_count = EXCLUDED.failure_count,
			locked_until = EXCLUDED.locked_until,
			last_failure_at = EXCLUDED.last_failure_at
	`, attempt.IPHash, attempt.FailureCount, attempt.LockedUntil, attempt.LastFailureAt)
	if err != nil {
		return fmt.Errorf("upsert login attempt: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) Delete(ctx context.Context, ipHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE ip_hash = $1`, ipHash)
	if err != nil {
		return fmt.Errorf("delete login attempt: %w", err)
	}
	return nil
}

// MemoryAttemptStore backs throttle tests.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[string]*Attempt)}
}

func (s *MemoryAttemptStore) Find(_ context.Context, ipHash string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[ipHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (s *MemoryAttemptStore) Upsert(_ context.Context, attempt *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *attempt
	s.attempts[attempt.IPHash] = &copied
	return nil
}

func (s *MemoryAttemptStore) Delete(_ context.Context, ipHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, ipHash)
	return nil
}
