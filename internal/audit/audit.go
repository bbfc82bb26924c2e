// Package audit records security-relevant actions. Domain services emit
// events through a Publisher; a worker drains them into a store so emission
// never blocks a request on storage.
package audit

import (
	"context"
	"time"
)

// Action names a recorded event.
type Action string

const (
	ActionSetupCompleted            Action = "setup_completed"
	ActionPasswordRotated           Action = "password_rotated"
	ActionLoginFailed               Action = "login_failed"
	ActionLoginLockout              Action = "login_lockout"
	ActionSessionsInvalidated       Action = "sessions_invalidated"
	ActionRegistrationCreated       Action = "registration_created"
	ActionCapacityRejected          Action = "capacity_rejected"
	ActionStaleReservationRecovered Action = "stale_reservation_recovered"
	ActionAttendeeCheckedIn         Action = "attendee_checked_in"
)

// Event is emitted from domain logic. Keep it transport-agnostic; no PII —
// subjects are ids, slugs, and hashes only.
type Event struct {
	Timestamp time.Time
	Action    Action
	Actor     string
	Subject   string
	Detail    string
}

// Publisher accepts events from domain services.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// Store persists drained events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// ChanPublisher hands events to a buffered channel; the worker drains it.
// Events are dropped when the buffer is full rather than blocking a request.
type ChanPublisher struct {
	inbox chan Event
}

func NewChanPublisher(buffer int) *ChanPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChanPublisher{inbox: make(chan Event, buffer)}
}

func (p *ChanPublisher) Emit(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
	}
}

// Inbox exposes the drain side for the worker.
func (p *ChanPublisher) Inbox() <-chan Event { return p.inbox }

// Close stops accepting events. Call only after request handling has
// stopped; the worker drains what remains and exits.
func (p *ChanPublisher) Close() { close(p.inbox) }

// NopPublisher discards events; used where auditing is not wired (tests).
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) {}
