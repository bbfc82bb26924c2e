//go:build integration

package attendee_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ticketeer/internal/attendee"
	"ticketeer/internal/crypto"
	"ticketeer/internal/event"
	"ticketeer/internal/keyring"
	"ticketeer/internal/recordmap"
	"ticketeer/pkg/testutil/containers"
)

// PostgresRegistrationSuite runs the registration engine against a real
// database so the row-lock serialization path is exercised, not just the
// in-memory mutex stand-in.
type PostgresRegistrationSuite struct {
	suite.Suite

	pg      *containers.PostgresContainer
	keys    *keyring.Service
	events  *event.PostgresStore
	service *attendee.Service
}

func TestPostgresRegistrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresRegistrationSuite))
}

func (s *PostgresRegistrationSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
}

func (s *PostgresRegistrationSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.Truncate(ctx))

	logger := slog.New(slog.DiscardHandler)
	s.keys = keyring.New(keyring.NewPostgresStore(s.pg.DB), crypto.NewHasher(1000, 2), logger)
	s.Require().NoError(s.keys.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

	schema, err := attendee.NewSchema(s.keys)
	s.Require().NoError(err)
	mapper := recordmap.NewMapper(schema, recordmap.NewSQLStore(s.pg.DB, schema))

	s.events = event.NewPostgresStore(s.pg.DB)
	s.service = attendee.New(s.events, mapper, attendee.NewPostgresGuard(s.pg.DB), s.keys, logger)
}

func (s *PostgresRegistrationSuite) createEvent(capacity int) *event.Event {
	e := &event.Event{
		ID:           uuid.NewString(),
		Slug:         uuid.NewString()[:8],
		Title:        "Integration",
		MaxAttendees: capacity,
		Active:       true,
	}
	s.Require().NoError(s.events.Create(context.Background(), e))
	return e
}

func (s *PostgresRegistrationSuite) TestRoundTripThroughDatabase() {
	ctx := context.Background()
	e := s.createEvent(5)

	res, err := s.service.Register(ctx, attendee.Params{
		EventID: e.ID, Name: "Alice", Email: "alice@example.com", Quantity: 2,
	})
	s.Require().NoError(err)
	s.Require().True(res.Registered())

	// Ciphertext at rest.
	var storedName string
	err = s.pg.DB.QueryRowContext(ctx,
		`SELECT name FROM attendees WHERE id = $1`, res.Attendee.ID).Scan(&storedName)
	s.Require().NoError(err)
	s.NotEqual("Alice", storedName)
	s.Contains(storedName, "enc:v1:")

	// Plaintext through the authenticated read path.
	_, dk, err := s.keys.Authenticate(ctx, "admin", "p@ssw0rd!")
	s.Require().NoError(err)
	listed, err := s.service.ListByEvent(keyring.WithDataKey(ctx, dk), e.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("Alice", listed[0].Name)
	s.Equal(2, listed[0].Quantity)
}

func (s *PostgresRegistrationSuite) TestRowLockSerializesLastSeat() {
	e := s.createEvent(1)

	var wg sync.WaitGroup
	results := make([]attendee.Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.Register(context.Background(), attendee.Params{
				EventID: e.ID, Name: "Racer", Email: "racer@example.com", Quantity: 1,
			})
		}(i)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.NotEqual(results[0].Registered(), results[1].Registered())

	var total int
	err := s.pg.DB.QueryRowContext(context.Background(),
		`SELECT COALESCE(SUM(quantity), 0) FROM attendees WHERE event_id = $1`, e.ID).Scan(&total)
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *PostgresRegistrationSuite) TestRotationKeepsSealedRowsReadable() {
	ctx := context.Background()
	e := s.createEvent(5)

	res, err := s.service.Register(ctx, attendee.Params{
		EventID: e.ID, Name: "Before Rotation", Email: "b@example.com", Quantity: 1,
	})
	s.Require().NoError(err)
	s.Require().True(res.Registered())

	rotated, err := s.keys.RotatePassword(ctx, "admin", "p@ssw0rd!", "new-password")
	s.Require().NoError(err)
	s.Require().True(rotated)

	_, dk, err := s.keys.Authenticate(ctx, "admin", "new-password")
	s.Require().NoError(err)
	listed, err := s.service.ListByEvent(keyring.WithDataKey(ctx, dk), e.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("Before Rotation", listed[0].Name)

	_, _, err = s.keys.Authenticate(ctx, "admin", "p@ssw0rd!")
	s.Error(err, "the old password is dead after rotation")
}
