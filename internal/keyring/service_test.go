package keyring

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"ticketeer/internal/crypto"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

type recordingInvalidator struct {
	adminIDs []string
}

func (r *recordingInvalidator) InvalidateAdmin(_ context.Context, adminID string) error {
	r.adminIDs = append(r.adminIDs, adminID)
	return nil
}

type KeyringSuite struct {
	suite.Suite
	store    *MemoryStore
	sessions *recordingInvalidator
	service  *Service
}

func (s *KeyringSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.sessions = &recordingInvalidator{}
	s.service = New(
		s.store,
		crypto.NewHasher(1000, 2),
		slog.New(slog.DiscardHandler),
		WithSessionInvalidator(s.sessions),
	)
}

func TestKeyringSuite(t *testing.T) {
	suite.Run(t, new(KeyringSuite))
}

func (s *KeyringSuite) TestCompleteSetup() {
	ctx := context.Background()

	s.Run("bootstraps the full hierarchy", func() {
		s.Require().NoError(s.service.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

		keys, err := s.store.FindKeys(ctx)
		s.Require().NoError(err)
		s.Len(keys.PublicKey, 32)
		s.NotEmpty(keys.WrappedPrivateKey)

		cred, err := s.store.FindCredentialByUsername(ctx, "admin")
		s.Require().NoError(err)
		s.True(cred.SetupComplete)
		s.NotEmpty(cred.PasswordVerifier)
		s.NotEmpty(cred.WrappedDataKey)
	})

	s.Run("second setup is a conflict", func() {
		err := s.service.CompleteSetup(ctx, "admin2", "other")
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("empty inputs rejected", func() {
		err := s.service.CompleteSetup(ctx, "", "")
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})
}

// flakySetupStore fails the first SaveSetup without persisting anything,
// mimicking a transient database error mid-bootstrap.
type flakySetupStore struct {
	*MemoryStore
	failuresLeft int
}

func (s *flakySetupStore) SaveSetup(ctx context.Context, keys *Keys, cred *Credential) error {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return errors.New("connection reset by peer")
	}
	return s.MemoryStore.SaveSetup(ctx, keys, cred)
}

func (s *KeyringSuite) TestSetupRetriesAfterTransientFailure() {
	ctx := context.Background()
	store := &flakySetupStore{MemoryStore: NewMemoryStore(), failuresLeft: 1}
	service := New(store, crypto.NewHasher(1000, 2), slog.New(slog.DiscardHandler))

	err := service.CompleteSetup(ctx, "admin", "p@ssw0rd!")
	s.Require().Error(err)

	// The failed attempt must leave no key hierarchy behind.
	_, err = store.FindKeys(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(service.CompleteSetup(ctx, "admin", "p@ssw0rd!"))
	_, dk, err := service.Authenticate(ctx, "admin", "p@ssw0rd!")
	s.Require().NoError(err)
	s.Len([]byte(dk), 32)
}

func (s *KeyringSuite) TestAuthenticate() {
	ctx := context.Background()
	s.Require().NoError(s.service.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

	s.Run("valid login yields a usable data key", func() {
		cred, dk, err := s.service.Authenticate(ctx, "admin", "p@ssw0rd!")
		s.Require().NoError(err)
		s.NotNil(cred)
		s.Len([]byte(dk), 32)
	})

	s.Run("wrong password and unknown user are indistinguishable", func() {
		_, _, err1 := s.service.Authenticate(ctx, "admin", "wrong")
		_, _, err2 := s.service.Authenticate(ctx, "ghost", "p@ssw0rd!")
		s.Require().Error(err1)
		s.Require().Error(err2)
		s.Equal(err1.Error(), err2.Error())
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err1))
	})
}

func (s *KeyringSuite) TestSealUnseal() {
	ctx := context.Background()
	s.Require().NoError(s.service.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

	token, err := s.service.Seal(ctx, "Alice Example")
	s.Require().NoError(err)
	s.True(crypto.IsSealed(token))

	s.Run("unseal requires a request-scoped data key", func() {
		_, err := s.service.Unseal(ctx, token)
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("unseal round-trips with the data key in scope", func() {
		_, dk, err := s.service.Authenticate(ctx, "admin", "p@ssw0rd!")
		s.Require().NoError(err)
		got, err := s.service.Unseal(WithDataKey(ctx, dk), token)
		s.Require().NoError(err)
		s.Equal("Alice Example", got)
	})
}

func (s *KeyringSuite) TestRotatePassword() {
	ctx := context.Background()
	s.Require().NoError(s.service.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

	// Seal before any rotation; the token must outlive every password change.
	token, err := s.service.Seal(ctx, "persistent PII")
	s.Require().NoError(err)

	s.Run("wrong old password mutates nothing", func() {
		before, err := s.store.FindCredentialByUsername(ctx, "admin")
		s.Require().NoError(err)

		ok, err := s.service.RotatePassword(ctx, "admin", "wrong", "next")
		s.Require().NoError(err)
		s.False(ok)

		after, err := s.store.FindCredentialByUsername(ctx, "admin")
		s.Require().NoError(err)
		s.Equal(before.PasswordVerifier, after.PasswordVerifier)
		s.Equal(before.WrappedDataKey, after.WrappedDataKey)
		s.Empty(s.sessions.adminIDs, "no session invalidation on failed rotation")
	})

	s.Run("rotation chain preserves access to old sealed data", func() {
		passwords := []string{"p@ssw0rd!", "second", "third", "fourth"}
		for i := 0; i < len(passwords)-1; i++ {
			ok, err := s.service.RotatePassword(ctx, "admin", passwords[i], passwords[i+1])
			s.Require().NoError(err)
			s.Require().True(ok)
		}

		_, dk, err := s.service.Authenticate(ctx, "admin", "fourth")
		s.Require().NoError(err)
		got, err := s.service.Unseal(WithDataKey(ctx, dk), token)
		s.Require().NoError(err)
		s.Equal("persistent PII", got)

		s.Len(s.sessions.adminIDs, 3, "each rotation bulk-invalidates sessions")
	})

	s.Run("every prior password stops working", func() {
		for _, old := range []string{"p@ssw0rd!", "second", "third"} {
			_, _, err := s.service.Authenticate(ctx, "admin", old)
			s.Require().Error(err, "password %q should be dead", old)
		}
	})

	s.Run("unknown user rotates nothing", func() {
		ok, err := s.service.RotatePassword(ctx, "ghost", "x", "y")
		s.Require().NoError(err)
		s.False(ok)
	})
}
