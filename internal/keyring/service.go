package keyring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ticketeer/internal/audit"
	"ticketeer/internal/crypto"
	"ticketeer/internal/platform/metrics"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

// errInvalidCredentials is the single answer for every authentication
// failure. Wrong password and corrupted key material must be
// indistinguishable to the caller.
var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// SessionInvalidator is the bulk session delete hook fired on rotation.
type SessionInvalidator interface {
	InvalidateAdmin(ctx context.Context, adminID string) error
}

// Service is the key hierarchy manager.
type Service struct {
	store    Store
	hasher   *crypto.Hasher
	sessions SessionInvalidator
	auditor  audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// The public key is plaintext and read-only once setup completes, so it
	// is safe to cache process-wide. Nothing else in the hierarchy is.
	publicKey atomic.Pointer[[]byte]
}

// Option configures optional collaborators.
type Option func(*Service)

func WithSessionInvalidator(si SessionInvalidator) Option {
	return func(s *Service) { s.sessions = si }
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

// New constructs the key hierarchy manager.
func New(store Store, hasher *crypto.Hasher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		hasher:  hasher,
		auditor: audit.NopPublisher{},
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CompleteSetup fires the one-time UNINITIALIZED → SETUP_COMPLETE
// transition: generates the keypair and data key, wraps the private key
// under the data key, and wraps the data key under the password-derived KEK.
func (s *Service) CompleteSetup(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "username and password are required")
	}
	if _, err := s.store.FindKeys(ctx); err == nil {
		return dErrors.New(dErrors.CodeConflict, "setup already completed")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("check existing keys: %w", err)
	}

	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}
	dataKey, err := crypto.NewKey()
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}
	wrappedPriv, err := crypto.Wrap(priv, dataKey)
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}

	verifier, artifact, err := s.hasher.HashPassword(ctx, password)
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}
	kek, err := crypto.DeriveKEK(artifact)
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}
	wrappedDataKey, err := crypto.Wrap(dataKey, kek)
	if err != nil {
		return fmt.Errorf("complete setup: %w", err)
	}

	cred := &Credential{
		ID:               uuid.NewString(),
		Username:         username,
		PasswordVerifier: verifier,
		WrappedDataKey:   wrappedDataKey,
		SetupComplete:    true,
		Created:          time.Now(),
	}
	// Keys and credential commit together or not at all: a half-applied
	// setup would make every retry look like a completed one.
	err = s.store.SaveSetup(ctx, &Keys{PublicKey: pub, WrappedPrivateKey: wrappedPriv}, cred)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "setup already completed")
		}
		return fmt.Errorf("complete setup: %w", err)
	}

	s.publicKey.Store(&pub)
	s.auditor.Emit(ctx, audit.Event{Action: audit.ActionSetupCompleted, Actor: cred.ID})
	s.logger.InfoContext(ctx, "setup completed", "admin_id", cred.ID)
	return nil
}

// FindCredential resolves an admin credential by id, for callers that hold
// a session rather than a username.
func (s *Service) FindCredential(ctx context.Context, id string) (*Credential, error) {
	return s.store.FindCredential(ctx, id)
}

// Authenticate verifies a password and unwraps the data key for this
// request. Every failure mode collapses to the same invalid-credentials
// answer.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Credential, DataKey, error) {
	cred, err := s.store.FindCredentialByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, errInvalidCredentials
		}
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}

	artifact, err := s.hasher.VerifyPassword(ctx, password, cred.PasswordVerifier)
	if err != nil {
		if errors.Is(err, crypto.ErrVerify) || errors.Is(err, crypto.ErrMalformedVerifier) {
			return nil, nil, errInvalidCredentials
		}
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}

	dk := s.UnwrapDataKey(ctx, cred, artifact)
	if dk == nil {
		return nil, nil, errInvalidCredentials
	}
	return cred, dk, nil
}

// UnwrapDataKey derives the KEK from a verified password artifact and
// unwraps the credential's data key. It returns nil on any failure without
// distinguishing a wrong password from corrupted storage.
func (s *Service) UnwrapDataKey(ctx context.Context, cred *Credential, artifact []byte) DataKey {
	kek, err := crypto.DeriveKEK(artifact)
	if err != nil {
		return nil
	}
	dk, err := crypto.Unwrap(cred.WrappedDataKey, kek)
	if err != nil {
		return nil
	}
	return DataKey(dk)
}

// RotatePassword rewraps the data key under a KEK derived from the new
// password. It touches exactly two fields no matter how many sealed records
// exist; the private key is never re-sealed. Returns false (with stored
// state untouched) when the old password does not check out.
func (s *Service) RotatePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "new password is required")
	}
	cred, err := s.store.FindCredentialByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("rotate password: %w", err)
	}

	artifact, err := s.hasher.VerifyPassword(ctx, oldPassword, cred.PasswordVerifier)
	if err != nil {
		if errors.Is(err, crypto.ErrVerify) || errors.Is(err, crypto.ErrMalformedVerifier) {
			return false, nil
		}
		return false, fmt.Errorf("rotate password: %w", err)
	}

	// The unwrap must succeed before anything is written; this is the path
	// that must never partially apply.
	dataKey := s.UnwrapDataKey(ctx, cred, artifact)
	if dataKey == nil {
		return false, nil
	}

	newVerifier, newArtifact, err := s.hasher.HashPassword(ctx, newPassword)
	if err != nil {
		return false, fmt.Errorf("rotate password: %w", err)
	}
	newKEK, err := crypto.DeriveKEK(newArtifact)
	if err != nil {
		return false, fmt.Errorf("rotate password: %w", err)
	}
	newWrapped, err := crypto.Wrap(dataKey, newKEK)
	if err != nil {
		return false, fmt.Errorf("rotate password: %w", err)
	}

	if err := s.store.UpdateCredentialKeys(ctx, cred.ID, newVerifier, newWrapped); err != nil {
		return false, fmt.Errorf("rotate password: %w", err)
	}

	// Defense in depth: a credential change orphans every live session.
	if s.sessions != nil {
		if err := s.sessions.InvalidateAdmin(ctx, cred.ID); err != nil {
			s.logger.ErrorContext(ctx, "invalidate sessions after rotation",
				"admin_id", cred.ID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.PasswordRotations.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{Action: audit.ActionPasswordRotated, Actor: cred.ID})
	s.logger.InfoContext(ctx, "password rotated", "admin_id", cred.ID)
	return true, nil
}

// PublicKey returns the sealing key, cached after the first load.
func (s *Service) PublicKey(ctx context.Context) ([]byte, error) {
	if pub := s.publicKey.Load(); pub != nil {
		return *pub, nil
	}
	keys, err := s.store.FindKeys(ctx)
	if err != nil {
		return nil, err
	}
	s.publicKey.Store(&keys.PublicKey)
	return keys.PublicKey, nil
}

// Seal encrypts one PII value to the public key. No data key is needed;
// anyone may seal, only an authenticated request can unseal.
func (s *Service) Seal(ctx context.Context, value string) (string, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return crypto.SealHybrid(value, pub)
}

// Unseal decrypts one sealed value using the request's data key: the
// private key is unwrapped, used, and discarded within this call.
func (s *Service) Unseal(ctx context.Context, token string) (string, error) {
	dk, ok := DataKeyFrom(ctx)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "no data key in request scope")
	}
	keys, err := s.store.FindKeys(ctx)
	if err != nil {
		return "", err
	}
	priv, err := crypto.Unwrap(keys.WrappedPrivateKey, dk)
	if err != nil {
		return "", err
	}
	return crypto.UnsealHybrid(token, priv)
}
