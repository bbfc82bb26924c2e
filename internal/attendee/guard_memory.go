package attendee

import (
	"context"
	"sync"

	"ticketeer/internal/event"
	"ticketeer/internal/recordmap"
)

// MemoryGuard serializes registrations with one mutex over the in-memory
// stores. Coarse, but the unit suites only need the same linearizability
// the row lock gives production.
type MemoryGuard struct {
	mu     sync.Mutex
	events event.Store
	rows   *recordmap.MemoryStore
}

func NewMemoryGuard(events event.Store, rows *recordmap.MemoryStore) *MemoryGuard {
	return &MemoryGuard{events: events, rows: rows}
}

func (g *MemoryGuard) WithEventLock(ctx context.Context, eventID string, fn func(ctx context.Context, maxAttendees, booked int) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, err := g.events.FindByID(ctx, eventID)
	if err != nil {
		return err
	}

	rows, err := g.rows.List(ctx, recordmap.Row{"event_id": eventID})
	if err != nil {
		return err
	}
	booked := 0
	for _, row := range rows {
		if q, ok := row["quantity"].(int64); ok {
			booked += int(q)
		}
	}

	// No rollback in memory: fn's insert is its last step, so an error
	// before it leaves nothing applied, matching the SQL guard.
	return fn(ctx, e.MaxAttendees, booked)
}
