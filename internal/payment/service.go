package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticketeer/internal/audit"
	"ticketeer/internal/platform/metrics"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

// reserveAttempts bounds the insert-reconcile loop. One stale cleanup
// earns one more insert; racing cleanups must not recurse forever.
const reserveAttempts = 2

// Service drives the reservation lifecycle. It holds no state of its own;
// every decision is attempt-then-reconcile against the store so it stays
// correct across process restarts.
type Service struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
	auditor    audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

// WithClock replaces the time source, for tests that age reservations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithAudit(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.auditor = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, staleAfter time.Duration, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		staleAfter: staleAfter,
		now:        time.Now,
		auditor:    audit.NopPublisher{},
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reserve claims the session id for the caller. Exactly one of any number
// of concurrent calls for the same id gets Reserved true; the rest learn
// about the existing row and must not create a second attendee.
func (s *Service) Reserve(ctx context.Context, sessionID string) (Claim, error) {
	if sessionID == "" {
		return Claim{}, dErrors.New(dErrors.CodeInvalidInput, "payment session id is required")
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		err := s.store.Create(ctx, &Reservation{PaymentSessionID: sessionID, ProcessedAt: s.now()})
		if err == nil {
			return Claim{Reserved: true}, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return Claim{}, err
		}

		existing, err := s.store.Find(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// The blocking row vanished between insert and read; a
			// concurrent cleanup beat us. Spend an attempt and re-insert.
			continue
		}
		if err != nil {
			return Claim{}, err
		}

		if !existing.Pending() {
			// Finalized: an idempotent replay of an already settled session.
			return Claim{Existing: existing}, nil
		}

		cutoff := s.now().Add(-s.staleAfter)
		if existing.ProcessedAt.Before(cutoff) {
			removed, err := s.store.DeleteIfPendingBefore(ctx, sessionID, cutoff)
			if err != nil {
				return Claim{}, err
			}
			if removed {
				s.countStaleRecovery()
				s.logger.InfoContext(ctx, "stale reservation recovered", "session", sessionID)
				s.auditor.Emit(ctx, audit.Event{Action: audit.ActionStaleReservationRecovered, Subject: sessionID})
			}
			continue
		}

		// Pending and fresh: another request is mid-flight right now.
		s.countConflict()
		return Claim{Existing: existing}, nil
	}

	// Retries exhausted under contention. Report whatever row stands now;
	// if even that is gone the caller simply retries the whole webhook.
	existing, err := s.store.Find(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.countConflict()
		return Claim{}, dErrors.New(dErrors.CodeConflict, "payment session is contended")
	}
	if err != nil {
		return Claim{}, err
	}
	s.countConflict()
	return Claim{Existing: existing}, nil
}

// Finalize transitions the pending reservation to finalized. Only valid
// from pending: a missing row or an already finalized one is an error,
// never a silent overwrite.
func (s *Service) Finalize(ctx context.Context, sessionID, attendeeID string) error {
	if sessionID == "" || attendeeID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session id and attendee id are required")
	}
	applied, err := s.store.Finalize(ctx, sessionID, attendeeID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := s.store.Find(ctx, sessionID); errors.Is(err, sentinel.ErrNotFound) {
		return sentinel.ErrNotFound
	} else if err != nil {
		return err
	}
	return fmt.Errorf("finalize %s: %w", sessionID, sentinel.ErrInvalidState)
}

// Processed reports whether the session has already been settled, so
// webhook handlers can short-circuit replays without reserving.
func (s *Service) Processed(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.store.Find(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !res.Pending(), nil
}

// Release drops the reservation after a downstream failure (sold out
// discovered post-capture, sealing unavailable) so the refund-then-retry
// cycle starts clean. Releasing an absent row is a no-op.
func (s *Service) Release(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

func (s *Service) countStaleRecovery() {
	if s.metrics != nil {
		s.metrics.StaleReservationsRecovered.Inc()
	}
}

func (s *Service) countConflict() {
	if s.metrics != nil {
		s.metrics.ReservationConflicts.Inc()
	}
}
