package attendee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketeer/pkg/platform/sentinel"
	"ticketeer/pkg/platform/tx"
)

const defaultGuardTimeout = 5 * time.Second

// PostgresGuard serializes registrations per event with a row lock: the
// event row is locked FOR UPDATE, the committed quantity sum is read inside
// the same transaction, and the mapper insert joins that transaction via
// context. Two concurrent requests for the last spot serialize here.
type PostgresGuard struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresGuard(db *sql.DB) *PostgresGuard {
	return &PostgresGuard{db: db, timeout: defaultGuardTimeout}
}

func (g *PostgresGuard) WithEventLock(ctx context.Context, eventID string, fn func(ctx context.Context, maxAttendees, booked int) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	dbtx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration tx: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	var maxAttendees int
	err = dbtx.QueryRowContext(ctx,
		`SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&maxAttendees)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}

	var booked int
	err = dbtx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM attendees WHERE event_id = $1`, eventID,
	).Scan(&booked)
	if err != nil {
		return fmt.Errorf("count attendees: %w", err)
	}

	if err := fn(tx.WithTx(ctx, dbtx), maxAttendees, booked); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}
