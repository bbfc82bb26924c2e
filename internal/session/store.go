package session

import (
	"context"
	"time"
)

// Store persists sessions keyed by token hash.
type Store interface {
	Create(ctx context.Context, sess *Session) error

	// Find returns the session or sentinel.ErrNotFound. Implementations
	// delete rows they observe to be expired instead of returning them.
	Find(ctx context.Context, tokenHash string, now time.Time) (*Session, error)

	Delete(ctx context.Context, tokenHash string) error

	// DeleteByAdmin removes every session for the admin and reports how
	// many were dropped.
	DeleteByAdmin(ctx context.Context, adminID string) (int64, error)
}
