package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and persists them. A store
// failure is logged and the worker keeps draining; the audit trail is
// best-effort, never a reason to stop serving.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.Error("append audit event",
					"action", string(event.Action), "error", err)
			}
		}
	}
}
