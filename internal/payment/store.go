package payment

import (
	"context"
	"time"
)

// Store persists reservations. Conditional operations report whether they
// applied so the service can reconcile races without application locks.
type Store interface {
	// Create inserts a new pending reservation. Returns
	// sentinel.ErrConflict when the session id is already reserved.
	Create(ctx context.Context, res *Reservation) error

	// Find returns the reservation or sentinel.ErrNotFound.
	Find(ctx context.Context, sessionID string) (*Reservation, error)

	// DeleteIfPendingBefore removes the row only while it is still pending
	// and older than cutoff. Reports whether a row was removed.
	DeleteIfPendingBefore(ctx context.Context, sessionID string, cutoff time.Time) (bool, error)

	// Finalize sets the attendee id only while the row is pending.
	// Reports whether the transition applied.
	Finalize(ctx context.Context, sessionID, attendeeID string) (bool, error)

	// Delete removes the row unconditionally. Missing rows are not an error;
	// the refund path may race with stale cleanup.
	Delete(ctx context.Context, sessionID string) error
}
