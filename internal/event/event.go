// Package event holds the bookable-event records. Titles and descriptions
// are plain CRUD; the interesting invariant (attendee count never exceeds
// capacity) is enforced by the registration engine, not here.
package event

import (
	"context"
	"time"
)

// Event is one bookable event.
type Event struct {
	ID           string
	Slug         string
	Title        string
	Description  string
	MaxAttendees int
	// UnitPrice is in the payment provider's minor unit (cents).
	UnitPrice int
	Active    bool
	Created   time.Time
}

// Store persists events.
type Store interface {
	Create(ctx context.Context, event *Event) error
	FindByID(ctx context.Context, id string) (*Event, error)
	FindBySlug(ctx context.Context, slug string) (*Event, error)
	List(ctx context.Context) ([]*Event, error)
	// Delete removes the event; attendee rows cascade with it.
	Delete(ctx context.Context, id string) error
}
