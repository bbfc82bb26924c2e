//go:build integration

package payment_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ticketeer/internal/payment"
	"ticketeer/pkg/testutil/containers"
)

// PostgresReservationSuite exercises the unique-constraint arbitration the
// in-memory store only simulates.
type PostgresReservationSuite struct {
	suite.Suite

	pg      *containers.PostgresContainer
	now     time.Time
	service *payment.Service
}

func TestPostgresReservationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresReservationSuite))
}

func (s *PostgresReservationSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
}

func (s *PostgresReservationSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
	s.now = time.Now().UTC()
	s.service = payment.New(payment.NewPostgresStore(s.pg.DB), 30*time.Minute,
		slog.New(slog.DiscardHandler),
		payment.WithClock(func() time.Time { return s.now }))
}

func (s *PostgresReservationSuite) TestConcurrentReserveSingleWinner() {
	const callers = 10
	var wg sync.WaitGroup
	claims := make([]payment.Claim, callers)
	errs := make([]error, callers)
	for i := range claims {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims[i], errs[i] = s.service.Reserve(context.Background(), "sess_1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range claims {
		s.Require().NoError(errs[i])
		if claims[i].Reserved {
			winners++
		}
	}
	s.Equal(1, winners, "the primary key arbitrates concurrent reservations")
}

func (s *PostgresReservationSuite) TestStaleRowReclaimedInDatabase() {
	ctx := context.Background()
	claim, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().True(claim.Reserved)

	s.now = s.now.Add(31 * time.Minute)
	claim, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.True(claim.Reserved)

	var count int
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_reservations`).Scan(&count))
	s.Equal(1, count, "the stale row was replaced, not duplicated")
}
