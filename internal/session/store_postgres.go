package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketeer/pkg/platform/sentinel"
)

// PostgresStore persists sessions. Expired rows are deleted lazily on the
// lookup that observes them; there is no background sweep.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, csrf_token, admin_id, wrapped_data_key, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.TokenHash, sess.CSRFToken, sess.AdminID, sess.WrappedDataKey, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, tokenHash string, now time.Time) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, csrf_token, admin_id, wrapped_data_key, expires_at, created
		FROM sessions WHERE token_hash = $1
	`, tokenHash).Scan(&sess.TokenHash, &sess.CSRFToken, &sess.AdminID, &sess.WrappedDataKey, &sess.ExpiresAt, &sess.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess.Expired(now) {
		if err := s.Delete(ctx, tokenHash); err != nil {
			return nil, err
		}
		return nil, sentinel.ErrNotFound
	}
	return &sess, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByAdmin(ctx context.Context, adminID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE admin_id = $1`, adminID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for admin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions rows affected: %w", err)
	}
	return affected, nil
}
