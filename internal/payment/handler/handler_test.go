package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"ticketeer/internal/attendee"
	"ticketeer/internal/crypto"
	"ticketeer/internal/event"
	"ticketeer/internal/keyring"
	"ticketeer/internal/payment"
	"ticketeer/internal/recordmap"
)

// WebhookSuite drives the settlement flow through real in-memory
// components; only the payment provider is simulated by the requests.
type WebhookSuite struct {
	suite.Suite

	router   http.Handler
	payments *payment.Service
	rows     *recordmap.MemoryStore
	event    *event.Event
	now      time.Time
}

func TestWebhookSuite(t *testing.T) {
	suite.Run(t, new(WebhookSuite))
}

func (s *WebhookSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()
	s.now = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	keys := keyring.New(keyring.NewMemoryStore(), crypto.NewHasher(1000, 2), logger)
	s.Require().NoError(keys.CompleteSetup(ctx, "admin", "p@ssw0rd!"))

	schema, err := attendee.NewSchema(keys)
	s.Require().NoError(err)
	events := event.NewMemoryStore()
	s.rows = recordmap.NewMemoryStore()
	attendees := attendee.New(events, recordmap.NewMapper(schema, s.rows),
		attendee.NewMemoryGuard(events, s.rows), keys, logger)

	s.payments = payment.New(payment.NewMemoryStore(), 30*time.Minute, logger,
		payment.WithClock(func() time.Time { return s.now }))

	s.event = &event.Event{
		ID: "evt-1", Slug: "gophercon", Title: "GopherCon",
		MaxAttendees: 2, UnitPrice: 5000, Active: true,
	}
	s.Require().NoError(events.Create(ctx, s.event))

	r := chi.NewRouter()
	New(s.payments, attendees, logger).Register(r)
	s.router = r
}

func (s *WebhookSuite) deliver(body map[string]any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *WebhookSuite) paidEvent(sessionID string) map[string]any {
	return map[string]any{
		"payment_session_id": sessionID,
		"status":             "paid",
		"event_id":           s.event.ID,
		"name":               "Alice",
		"email":              "alice@example.com",
		"quantity":           1,
		"price_paid":         "50.00",
	}
}

func (s *WebhookSuite) TestSettlement() {
	rec := s.deliver(s.paidEvent("sess_1"))
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("settled", body["status"])
	s.NotEmpty(body["attendee_id"])
	s.NotEmpty(body["ticket_token"])

	processed, err := s.payments.Processed(context.Background(), "sess_1")
	s.Require().NoError(err)
	s.True(processed)
}

func (s *WebhookSuite) TestReplayCreatesNoSecondAttendee() {
	s.Require().Equal(http.StatusOK, s.deliver(s.paidEvent("sess_1")).Code)

	rec := s.deliver(s.paidEvent("sess_1"))
	s.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("already_processed", body["status"])

	rows, err := s.rows.List(context.Background(), nil)
	s.Require().NoError(err)
	s.Len(rows, 1, "a replayed delivery settles once")
}

func (s *WebhookSuite) TestSoldOutReleasesAndAsksForRefund() {
	s.Require().Equal(http.StatusOK, s.deliver(s.paidEvent("sess_1")).Code)
	s.Require().Equal(http.StatusOK, s.deliver(s.paidEvent("sess_2")).Code)

	rec := s.deliver(s.paidEvent("sess_3"))
	s.Equal(http.StatusConflict, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("capacity_exceeded", body["error"])
	s.Equal(true, body["refund_required"])

	// The reservation was released, so a retry after a refund-and-repay
	// cycle starts clean.
	processed, err := s.payments.Processed(context.Background(), "sess_3")
	s.Require().NoError(err)
	s.False(processed)
	claim, err := s.payments.Reserve(context.Background(), "sess_3")
	s.Require().NoError(err)
	s.True(claim.Reserved)
}

func (s *WebhookSuite) TestNonPaidStatusIgnored() {
	rec := s.deliver(map[string]any{
		"payment_session_id": "sess_1",
		"status":             "canceled",
		"event_id":           s.event.ID,
	})
	s.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("ignored", body["status"])

	processed, err := s.payments.Processed(context.Background(), "sess_1")
	s.Require().NoError(err)
	s.False(processed)
}

func (s *WebhookSuite) TestMissingSessionID() {
	rec := s.deliver(map[string]any{"status": "paid", "event_id": s.event.ID})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *WebhookSuite) TestInvalidJSON() {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}
