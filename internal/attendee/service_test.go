package attendee

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ticketeer/internal/crypto"
	"ticketeer/internal/event"
	"ticketeer/internal/keyring"
	"ticketeer/internal/recordmap"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

type RegistrationSuite struct {
	suite.Suite

	events  *event.MemoryStore
	rows    *recordmap.MemoryStore
	keys    *keyring.Service
	service *Service

	event *event.Event
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	s.keys = keyring.New(keyring.NewMemoryStore(), crypto.NewHasher(1000, 2), logger)
	require.NoError(s.T(), s.keys.CompleteSetup(context.Background(), "admin", "correct horse"))

	schema, err := NewSchema(s.keys)
	require.NoError(s.T(), err)

	s.events = event.NewMemoryStore()
	s.rows = recordmap.NewMemoryStore()
	mapper := recordmap.NewMapper(schema, s.rows)
	guard := NewMemoryGuard(s.events, s.rows)
	s.service = New(s.events, mapper, guard, s.keys, logger)

	s.event = &event.Event{
		ID:           "evt-1",
		Slug:         "gophercon",
		Title:        "GopherCon",
		MaxAttendees: 10,
		Active:       true,
	}
	require.NoError(s.T(), s.events.Create(context.Background(), s.event))
}

// adminCtx simulates an authenticated request: the data key unwrapped at
// login travels in the context so read transforms can unseal.
func (s *RegistrationSuite) adminCtx() context.Context {
	_, dk, err := s.keys.Authenticate(context.Background(), "admin", "correct horse")
	s.Require().NoError(err)
	return keyring.WithDataKey(context.Background(), dk)
}

func (s *RegistrationSuite) register(params Params) Result {
	res, err := s.service.Register(context.Background(), params)
	s.Require().NoError(err)
	return res
}

func (s *RegistrationSuite) params() Params {
	return Params{EventID: s.event.ID, Name: "Alice", Email: "alice@example.com", Quantity: 1}
}

func (s *RegistrationSuite) TestRegisterRoundTrip() {
	phone := "+1 555 0100"
	params := s.params()
	params.Phone = &phone

	res := s.register(params)
	s.Require().True(res.Registered())
	s.Equal("Alice", res.Attendee.Name)
	s.Equal("alice@example.com", res.Attendee.Email)
	s.Require().NotNil(res.Attendee.Phone)
	s.Equal(phone, *res.Attendee.Phone)
	s.NotEmpty(res.Attendee.ID)
	s.NotEmpty(res.Attendee.TicketToken)
	s.False(res.Attendee.CheckedIn)

	listed, err := s.service.ListByEvent(s.adminCtx(), s.event.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("Alice", listed[0].Name)
	s.Require().NotNil(listed[0].Phone)
	s.Equal(phone, *listed[0].Phone)
}

func (s *RegistrationSuite) TestSealedAtRest() {
	s.register(s.params())

	rows, err := s.rows.List(context.Background(), nil)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	for _, col := range []string{"name", "email", "checked_in"} {
		stored, ok := rows[0][col].(string)
		s.Require().True(ok, col)
		s.True(strings.HasPrefix(stored, "enc:v1:"), "%s stored in clear: %q", col, stored)
	}
	s.Nil(rows[0]["phone"], "absent optional field must stay null, not sealed")
}

func (s *RegistrationSuite) TestEncryptionErrorBeforeSetup() {
	logger := slog.New(slog.DiscardHandler)
	bare := keyring.New(keyring.NewMemoryStore(), crypto.NewHasher(1000, 2), logger)
	schema, err := NewSchema(bare)
	s.Require().NoError(err)
	rows := recordmap.NewMemoryStore()
	service := New(s.events, recordmap.NewMapper(schema, rows), NewMemoryGuard(s.events, rows), bare, logger)

	res, err := service.Register(context.Background(), s.params())
	s.Require().NoError(err)
	s.Equal(ReasonEncryptionError, res.Reason)
	s.False(res.Registered())

	stored, err := rows.List(context.Background(), nil)
	s.Require().NoError(err)
	s.Empty(stored, "a failed seal must not leave a row behind")
}

func (s *RegistrationSuite) TestCorruptKeyMaterialYieldsEncryptionError() {
	logger := slog.New(slog.DiscardHandler)
	store := keyring.NewMemoryStore()
	s.Require().NoError(store.SaveSetup(context.Background(),
		&keyring.Keys{PublicKey: make([]byte, 31), WrappedPrivateKey: []byte("junk")},
		&keyring.Credential{ID: "adm-1", Username: "admin"}))
	keys := keyring.New(store, crypto.NewHasher(1000, 2), logger)

	schema, err := NewSchema(keys)
	s.Require().NoError(err)
	rows := recordmap.NewMemoryStore()
	service := New(s.events, recordmap.NewMapper(schema, rows), NewMemoryGuard(s.events, rows), keys, logger)

	res, err := service.Register(context.Background(), s.params())
	s.Require().NoError(err, "a bad stored key is a tagged result, not a failure")
	s.Equal(ReasonEncryptionError, res.Reason)
	s.False(res.Registered())

	stored, err := rows.List(context.Background(), nil)
	s.Require().NoError(err)
	s.Empty(stored, "a failed seal must not leave a row behind")
}

func (s *RegistrationSuite) TestCapacityExceeded() {
	params := s.params()
	params.Quantity = s.event.MaxAttendees + 1

	res := s.register(params)
	s.Equal(ReasonCapacityExceeded, res.Reason)
	s.Nil(res.Attendee)

	params.Quantity = s.event.MaxAttendees
	s.True(s.register(params).Registered())

	res = s.register(s.params())
	s.Equal(ReasonCapacityExceeded, res.Reason, "a full event rejects even quantity 1")
}

func (s *RegistrationSuite) TestConcurrentRegistrationsHonorCapacity() {
	const attempts = 25

	var wg sync.WaitGroup
	results := make([]Result, attempts)
	errs := make([]error, attempts)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.Register(context.Background(), s.params())
		}(i)
	}
	wg.Wait()

	registered := 0
	for i, res := range results {
		s.Require().NoError(errs[i])
		if res.Registered() {
			registered++
		} else {
			s.Equal(ReasonCapacityExceeded, res.Reason)
		}
	}
	s.Equal(s.event.MaxAttendees, registered)
}

func (s *RegistrationSuite) TestConcurrentLastSeat() {
	last := &event.Event{ID: "evt-last", Slug: "last-seat", Title: "Last Seat", MaxAttendees: 1, Active: true}
	s.Require().NoError(s.events.Create(context.Background(), last))

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := s.params()
			params.EventID = last.ID
			results[i], errs[i] = s.service.Register(context.Background(), params)
		}(i)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.NotEqual(results[0].Registered(), results[1].Registered(),
		"exactly one of two racing registrations wins the last seat")
}

func (s *RegistrationSuite) TestInactiveEvent() {
	closed := &event.Event{ID: "evt-closed", Slug: "closed", Title: "Closed", MaxAttendees: 5, Active: false}
	s.Require().NoError(s.events.Create(context.Background(), closed))

	params := s.params()
	params.EventID = closed.ID
	_, err := s.service.Register(context.Background(), params)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *RegistrationSuite) TestUnknownEvent() {
	params := s.params()
	params.EventID = "evt-missing"
	_, err := s.service.Register(context.Background(), params)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *RegistrationSuite) TestValidation() {
	for name, mutate := range map[string]func(*Params){
		"missing event":    func(p *Params) { p.EventID = "" },
		"missing name":     func(p *Params) { p.Name = "" },
		"missing email":    func(p *Params) { p.Email = "" },
		"zero quantity":    func(p *Params) { p.Quantity = 0 },
		"negative tickets": func(p *Params) { p.Quantity = -3 },
	} {
		s.Run(name, func() {
			params := s.params()
			mutate(&params)
			_, err := s.service.Register(context.Background(), params)
			s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
		})
	}
}

func (s *RegistrationSuite) TestCheckIn() {
	res := s.register(s.params())
	s.Require().True(res.Registered())

	ctx := s.adminCtx()
	att, flipped, err := s.service.CheckIn(ctx, res.Attendee.TicketToken)
	s.Require().NoError(err)
	s.True(flipped)
	s.True(att.CheckedIn)

	att, flipped, err = s.service.CheckIn(ctx, res.Attendee.TicketToken)
	s.Require().NoError(err)
	s.False(flipped, "a repeat scan reports the earlier check-in")
	s.True(att.CheckedIn)

	_, _, err = s.service.CheckIn(ctx, "no-such-token")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrationSuite) TestConcurrentCheckInFlipsOnce() {
	res := s.register(s.params())
	ctx := s.adminCtx()

	const scans = 8
	var wg sync.WaitGroup
	flips := make([]bool, scans)
	errs := make([]error, scans)
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, flipped, err := s.service.CheckIn(ctx, res.Attendee.TicketToken)
			flips[i] = flipped
			errs[i] = err
		}(i)
	}
	wg.Wait()

	flipped := 0
	for i := 0; i < scans; i++ {
		s.Require().NoError(errs[i])
		if flips[i] {
			flipped++
		}
	}
	s.Equal(1, flipped, "exactly one scan performs the flip")
}
