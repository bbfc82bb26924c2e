// Package attendee is the atomic registration engine: capacity-checked,
// PII-sealed attendee creation as one serialized unit per event.
package attendee

import "time"

// Attendee is the external-shaped record. PII fields are plaintext here;
// they only exist sealed at rest.
type Attendee struct {
	ID          string
	EventID     string
	Name        string
	Email       string
	Phone       *string
	PaymentID   *string
	PricePaid   *string
	Quantity    int
	CheckedIn   bool
	TicketToken string
	Created     time.Time
}

// Params are the registration inputs. Phone and PricePaid are legitimately
// absent for free events and stay nil rather than encrypting a sentinel.
type Params struct {
	EventID   string
	Name      string
	Email     string
	PaymentID *string
	Quantity  int
	Phone     *string
	PricePaid *string
}

// Reason tags the expected non-success outcomes callers must branch on.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonCapacityExceeded Reason = "capacity_exceeded"
	ReasonEncryptionError  Reason = "encryption_error"
)

// Result is the tagged outcome of a registration attempt. Capacity and
// encryption failures are results, not errors: callers branch on them
// routinely (the payment path refunds on capacity, the public form retries).
type Result struct {
	Attendee *Attendee
	Reason   Reason
}

// Registered reports whether the attempt created an attendee.
func (r Result) Registered() bool { return r.Reason == ReasonNone && r.Attendee != nil }
