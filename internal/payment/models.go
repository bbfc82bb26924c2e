// Package payment turns at-least-once payment-provider deliveries into an
// exactly-once internal effect. The reservation row is the idempotency
// record: absent, pending (no attendee yet), or finalized.
package payment

import "time"

// Reservation is one row keyed by the provider's session id. A nil
// AttendeeID means the flow is still pending; a set one means finalized.
type Reservation struct {
	PaymentSessionID string
	AttendeeID       *string
	ProcessedAt      time.Time
}

// Pending reports whether the reservation has not been finalized.
func (r *Reservation) Pending() bool { return r.AttendeeID == nil }

// Claim is the outcome of a reservation attempt. When Reserved is false,
// Existing carries the row that blocked the claim: a finalized row means
// an idempotent replay, a pending one means another request is mid-flight.
type Claim struct {
	Reserved bool
	Existing *Reservation
}
