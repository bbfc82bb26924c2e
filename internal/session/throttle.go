package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"ticketeer/internal/audit"
	"ticketeer/internal/platform/metrics"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

// Attempt is the per-source failure counter. The source address is stored
// only as a hash, so the table never holds raw client IPs.
type Attempt struct {
	IPHash        string
	FailureCount  int
	LockedUntil   *time.Time
	LastFailureAt time.Time
}

// AttemptStore persists login failure counters.
type AttemptStore interface {
	Find(ctx context.Context, ipHash string) (*Attempt, error)
	Upsert(ctx context.Context, attempt *Attempt) error
	Delete(ctx context.Context, ipHash string) error
}

// ErrLockedOut is wrapped into the forbidden error so transports can
// distinguish throttling from bad credentials for logging, while the
// response body stays generic.
var ErrLockedOut = errors.New("login locked out")

// Throttle applies a fixed-threshold lockout per hashed source address.
// A lockout whose expiry has passed counts as no lockout and is cleared
// lazily on the next check; there is no background sweep.
type Throttle struct {
	store     AttemptStore
	threshold int
	lockout   time.Duration
	now       func() time.Time
	auditor   audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type ThrottleOption func(*Throttle)

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
	}
}

func WithThrottleAudit(p audit.Publisher) ThrottleOption {
	return func(t *Throttle) {
		if p != nil {
			t.auditor = p
		}
	}
}

func WithThrottleMetrics(m *metrics.Metrics) ThrottleOption {
	return func(t *Throttle) { t.metrics = m }
}

func NewThrottle(store AttemptStore, threshold int, lockout time.Duration, logger *slog.Logger, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		store:     store,
		threshold: threshold,
		lockout:   lockout,
		now:       time.Now,
		auditor:   audit.NopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Check rejects the attempt while a lockout is active.
func (t *Throttle) Check(ctx context.Context, ip string) error {
	attempt, err := t.store.Find(ctx, hashIP(ip))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if attempt.LockedUntil == nil {
		return nil
	}
	if t.now().Before(*attempt.LockedUntil) {
		return dErrors.Wrap(ErrLockedOut, dErrors.CodeForbidden, "too many failed login attempts")
	}
	// Lockout expired: equivalent to no lockout, cleared on observation.
	if err := t.store.Delete(ctx, attempt.IPHash); err != nil {
		return err
	}
	return nil
}

// RecordFailure bumps the counter and applies the lockout at threshold.
func (t *Throttle) RecordFailure(ctx context.Context, ip string) error {
	ipHash := hashIP(ip)
	attempt, err := t.store.Find(ctx, ipHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		attempt = &Attempt{IPHash: ipHash}
	} else if err != nil {
		return err
	}

	attempt.FailureCount++
	attempt.LastFailureAt = t.now()
	if attempt.FailureCount >= t.threshold && attempt.LockedUntil == nil {
		until := t.now().Add(t.lockout)
		attempt.LockedUntil = &until
		if t.metrics != nil {
			t.metrics.LoginLockouts.Inc()
		}
		t.logger.WarnContext(ctx, "login lockout applied", "failures", attempt.FailureCount)
		t.auditor.Emit(ctx, audit.Event{Action: audit.ActionLoginLockout, Actor: ipHash})
	}
	return t.store.Upsert(ctx, attempt)
}

// Reset clears the counter after a successful login.
func (t *Throttle) Reset(ctx context.Context, ip string) error {
	return t.store.Delete(ctx, hashIP(ip))
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
