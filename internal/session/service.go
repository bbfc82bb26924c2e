package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticketeer/internal/audit"
	"ticketeer/internal/crypto"
	"ticketeer/internal/keyring"
	"ticketeer/internal/platform/metrics"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

// Service issues and resolves sessions. Resolution goes through the
// short-TTL cache first; the store stays the source of truth and also
// enforces expiry independently.
type Service struct {
	store    Store
	cache    Cache
	throttle *Throttle
	keys     *keyring.Service
	ttl      time.Duration
	now      func() time.Time
	auditor  audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

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

func New(store Store, cache Cache, throttle *Throttle, keys *keyring.Service, ttl time.Duration, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cache:    cache,
		throttle: throttle,
		keys:     keys,
		ttl:      ttl,
		now:      time.Now,
		auditor:  audit.NopPublisher{},
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login authenticates and issues a session. The returned data key is the
// request's plaintext key material; callers place it in the request
// context and must not retain it.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*Auth, error) {
	if err := s.throttle.Check(ctx, ip); err != nil {
		return nil, err
	}

	cred, dataKey, err := s.keys.Authenticate(ctx, username, password)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeUnauthorized {
			if rerr := s.throttle.RecordFailure(ctx, ip); rerr != nil {
				s.logger.ErrorContext(ctx, "record login failure", "error", rerr)
			}
			s.auditor.Emit(ctx, audit.Event{Action: audit.ActionLoginFailed, Subject: username})
		}
		return nil, err
	}
	if err := s.throttle.Reset(ctx, ip); err != nil {
		s.logger.ErrorContext(ctx, "reset login throttle", "error", err)
	}

	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	csrf, err := randomToken()
	if err != nil {
		return nil, err
	}

	// Wrap the data key under the raw token so later requests on this
	// session can reopen it; the stored hash cannot.
	sessionKEK, err := crypto.DeriveSessionKEK(token)
	if err != nil {
		return nil, err
	}
	wrappedDataKey, err := crypto.Wrap(dataKey, sessionKEK)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		TokenHash:      HashToken(token),
		CSRFToken:      csrf,
		AdminID:        cred.ID,
		WrappedDataKey: wrappedDataKey,
		ExpiresAt:      s.now().Add(s.ttl),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &Auth{
		Token:     token,
		CSRFToken: csrf,
		AdminID:   cred.ID,
		ExpiresAt: sess.ExpiresAt,
		DataKey:   dataKey,
	}, nil
}

// Resolve maps a raw bearer token to its session. Cache hits skip the
// store entirely; the expiry check still runs here, so a cached entry can
// never outlive the session it describes.
func (s *Service) Resolve(ctx context.Context, rawToken string) (*Session, error) {
	tokenHash := HashToken(rawToken)

	if cached, ok, err := s.cache.Get(ctx, tokenHash); err != nil {
		s.logger.WarnContext(ctx, "session cache read failed", "error", err)
	} else if ok {
		if cached.Expired(s.now()) {
			if err := s.cache.Evict(ctx, tokenHash); err != nil {
				s.logger.WarnContext(ctx, "session cache evict failed", "error", err)
			}
		} else {
			s.countCacheHit()
			return cached, nil
		}
	}
	s.countCacheMiss()

	sess, err := s.store.Find(ctx, tokenHash, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired session")
		}
		return nil, err
	}
	if err := s.cache.Put(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "session cache write failed", "error", err)
	}
	return sess, nil
}

// DataKeyFor reopens the session's data key using the presented raw
// token. The result is request-scoped: it goes into the request context
// and is gone when the request is.
func (s *Service) DataKeyFor(rawToken string, sess *Session) ([]byte, error) {
	sessionKEK, err := crypto.DeriveSessionKEK(rawToken)
	if err != nil {
		return nil, err
	}
	dataKey, err := crypto.Unwrap(sess.WrappedDataKey, sessionKEK)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired session")
	}
	return dataKey, nil
}

// Logout deletes the session and its cache entry.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	tokenHash := HashToken(rawToken)
	if err := s.cache.Evict(ctx, tokenHash); err != nil {
		s.logger.WarnContext(ctx, "session cache evict failed", "error", err)
	}
	return s.store.Delete(ctx, tokenHash)
}

// InvalidateAdmin drops every session for the admin and resets the cache.
// This is the bulk invalidation hook password rotation fires.
func (s *Service) InvalidateAdmin(ctx context.Context, adminID string) error {
	dropped, err := s.store.DeleteByAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if err := s.cache.Reset(ctx); err != nil {
		return err
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:  audit.ActionSessionsInvalidated,
		Subject: adminID,
		Detail:  fmt.Sprintf("%d sessions dropped", dropped),
	})
	return nil
}

func (s *Service) countCacheHit() {
	if s.metrics != nil {
		s.metrics.SessionCacheHits.Inc()
	}
}

func (s *Service) countCacheMiss() {
	if s.metrics != nil {
		s.metrics.SessionCacheMisses.Inc()
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
