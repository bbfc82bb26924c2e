package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ticketeer/pkg/platform/sentinel"
)

// PostgresStore persists reservations. The primary key on
// payment_session_id is what makes reservation attempts race-safe: the
// database, not the application, decides the winner.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, res *Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_reservations (payment_session_id, attendee_id, processed_at)
		VALUES ($1, $2, $3)
	`, res.PaymentSessionID, res.AttendeeID, res.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, sessionID string) (*Reservation, error) {
	var res Reservation
	err := s.db.QueryRowContext(ctx, `
		SELECT payment_session_id, attendee_id, processed_at
		FROM payment_reservations WHERE payment_session_id = $1
	`, sessionID).Scan(&res.PaymentSessionID, &res.AttendeeID, &res.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &res, nil
}

func (s *PostgresStore) DeleteIfPendingBefore(ctx context.Context, sessionID string, cutoff time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM payment_reservations
		WHERE payment_session_id = $1 AND attendee_id IS NULL AND processed_at < $2
	`, sessionID, cutoff)
	if err != nil {
		return false, fmt.Errorf("delete stale reservation: %w", err)
	}
	return applied(result)
}

func (s *PostgresStore) Finalize(ctx context.Context, sessionID, attendeeID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_reservations SET attendee_id = $2
		WHERE payment_session_id = $1 AND attendee_id IS NULL
	`, sessionID, attendeeID)
	if err != nil {
		return false, fmt.Errorf("finalize reservation: %w", err)
	}
	return applied(result)
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM payment_reservations WHERE payment_session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func applied(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reservation rows affected: %w", err)
	}
	return affected > 0, nil
}
