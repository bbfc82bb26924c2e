package attendee

import "context"

// CapacityGuard serializes the capacity-check-then-insert unit per event.
// fn receives the event's capacity and the committed quantity sum; any
// error from fn aborts the unit with nothing applied.
//
// Both implementations are attempt-then-reconcile over shared storage, not
// application-level locks, so correctness survives process restarts.
type CapacityGuard interface {
	WithEventLock(ctx context.Context, eventID string, fn func(ctx context.Context, maxAttendees, booked int) error) error
}
