package payment

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

const staleAfter = 30 * time.Minute

type ReservationSuite struct {
	suite.Suite

	store   *MemoryStore
	service *Service
	now     time.Time
}

func TestReservationSuite(t *testing.T) {
	suite.Run(t, new(ReservationSuite))
}

func (s *ReservationSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.now = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	s.service = New(s.store, staleAfter, slog.New(slog.DiscardHandler),
		WithClock(func() time.Time { return s.now }))
}

func (s *ReservationSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *ReservationSuite) TestFirstReserveWins() {
	claim, err := s.service.Reserve(context.Background(), "sess_1")
	s.Require().NoError(err)
	s.True(claim.Reserved)

	claim, err = s.service.Reserve(context.Background(), "sess_1")
	s.Require().NoError(err)
	s.False(claim.Reserved)
	s.Require().NotNil(claim.Existing)
	s.Nil(claim.Existing.AttendeeID, "a fresh pending row is reported as mid-flight")
}

func (s *ReservationSuite) TestFinalizedReplay() {
	ctx := context.Background()
	claim, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().True(claim.Reserved)
	s.Require().NoError(s.service.Finalize(ctx, "sess_1", "att-1"))

	claim, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.False(claim.Reserved)
	s.Require().NotNil(claim.Existing)
	s.Require().NotNil(claim.Existing.AttendeeID)
	s.Equal("att-1", *claim.Existing.AttendeeID)
}

func (s *ReservationSuite) TestStaleRecovery() {
	ctx := context.Background()
	claim, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().True(claim.Reserved)

	s.advance(staleAfter - time.Second)
	claim, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.False(claim.Reserved, "not yet past the stale cutoff")

	s.advance(2 * time.Second)
	claim, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.True(claim.Reserved, "the abandoned row is reclaimed")

	res, err := s.store.Find(ctx, "sess_1")
	s.Require().NoError(err)
	s.Equal(s.now, res.ProcessedAt, "the reclaimed row carries the new timestamp")
}

func (s *ReservationSuite) TestStaleNeverReclaimsFinalized() {
	ctx := context.Background()
	_, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Finalize(ctx, "sess_1", "att-1"))

	s.advance(48 * time.Hour)
	claim, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.False(claim.Reserved, "a settled session never reopens, regardless of age")
	s.Require().NotNil(claim.Existing.AttendeeID)
}

func (s *ReservationSuite) TestConcurrentReserveExactlyOneWinner() {
	const callers = 20
	var wg sync.WaitGroup
	claims := make([]Claim, callers)
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
	s.Equal(1, winners)
}

func (s *ReservationSuite) TestFinalizeTransitions() {
	ctx := context.Background()

	err := s.service.Finalize(ctx, "sess_absent", "att-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Finalize(ctx, "sess_1", "att-1"))

	err = s.service.Finalize(ctx, "sess_1", "att-2")
	s.ErrorIs(err, sentinel.ErrInvalidState, "finalize is only valid from pending")

	err = s.service.Finalize(ctx, "sess_1", "")
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *ReservationSuite) TestProcessed() {
	ctx := context.Background()

	processed, err := s.service.Processed(ctx, "sess_1")
	s.Require().NoError(err)
	s.False(processed)

	_, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	processed, err = s.service.Processed(ctx, "sess_1")
	s.Require().NoError(err)
	s.False(processed, "pending is not processed")

	s.Require().NoError(s.service.Finalize(ctx, "sess_1", "att-1"))
	processed, err = s.service.Processed(ctx, "sess_1")
	s.Require().NoError(err)
	s.True(processed)
}

func (s *ReservationSuite) TestReleaseAllowsCleanRetry() {
	ctx := context.Background()
	claim, err := s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.Require().True(claim.Reserved)

	s.Require().NoError(s.service.Release(ctx, "sess_1"))
	s.Require().NoError(s.service.Release(ctx, "sess_1"), "releasing an absent row is a no-op")

	claim, err = s.service.Reserve(ctx, "sess_1")
	s.Require().NoError(err)
	s.True(claim.Reserved, "a released session reserves fresh")
}

func (s *ReservationSuite) TestEmptySessionID() {
	_, err := s.service.Reserve(context.Background(), "")
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}
