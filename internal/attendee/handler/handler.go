// Package handler exposes registration, the admin attendee list and the
// check-in flow.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ticketeer/internal/attendee"
	"ticketeer/internal/event"
	"ticketeer/internal/ticket"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/httputil"
	"ticketeer/pkg/platform/sentinel"
)

type Handler struct {
	attendees *attendee.Service
	events    event.Store
	tickets   *ticket.Issuer
	logger    *slog.Logger
}

func New(attendees *attendee.Service, events event.Store, tickets *ticket.Issuer, logger *slog.Logger) *Handler {
	return &Handler{attendees: attendees, events: events, tickets: tickets, logger: logger}
}

// Register mounts the public registration endpoint, used directly for free
// events. Paid events register through the payment webhook instead.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events/{slug}/register", h.HandleRegister)
}

// RegisterAuthenticated mounts the admin attendee endpoints.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Get("/events/{id}/attendees", h.HandleList)
	r.Post("/checkin", h.HandleCheckIn)
	r.Get("/attendees/{ticketToken}/checkin-link", h.HandleCheckinLink)
}

type registerRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Quantity int     `json:"quantity"`
}

type attendeeResponse struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone,omitempty"`
	PaymentID   *string   `json:"payment_id,omitempty"`
	PricePaid   *string   `json:"price_paid,omitempty"`
	Quantity    int       `json:"quantity"`
	CheckedIn   bool      `json:"checked_in"`
	TicketToken string    `json:"ticket_token"`
	Created     time.Time `json:"created,omitzero"`
}

func fromAttendee(a *attendee.Attendee) attendeeResponse {
	return attendeeResponse{
		ID:          a.ID,
		EventID:     a.EventID,
		Name:        a.Name,
		Email:       a.Email,
		Phone:       a.Phone,
		PaymentID:   a.PaymentID,
		PricePaid:   a.PricePaid,
		Quantity:    a.Quantity,
		CheckedIn:   a.CheckedIn,
		TicketToken: a.TicketToken,
		Created:     a.Created,
	}
}

// HandleRegister handles POST /events/{slug}/register requests. Only free
// events accept direct registration; paid ones answer 402-ish guidance.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e, err := h.events.FindBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	if e.UnitPrice > 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "paid events register through checkout"))
		return
	}

	req, err := httputil.Decode[registerRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.attendees.Register(ctx, attendee.Params{
		EventID:  e.ID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Quantity: req.Quantity,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "registration failed", "event", e.Slug, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if !result.Registered() {
		writeReason(w, result.Reason)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registrationBody(result))
}

// HandleList handles GET /events/{id}/attendees requests. Decryption works
// because the session middleware put the request's data key on the context.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	attendees, err := h.attendees.ListByEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.ErrorContext(ctx, "list attendees failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]attendeeResponse, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, fromAttendee(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type checkInRequest struct {
	// Token is a signed check-in link token or a raw ticket token.
	Token string `json:"token"`
}

type checkInResponse struct {
	Attendee attendeeResponse `json:"attendee"`
	Repeat   bool             `json:"repeat"`
}

// HandleCheckIn handles POST /checkin requests.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[checkInRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}

	ticketToken := req.Token
	if subject, err := h.tickets.Verify(req.Token); err == nil {
		ticketToken = subject
	}

	att, flipped, err := h.attendees.CheckIn(ctx, ticketToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown ticket"))
			return
		}
		h.logger.ErrorContext(ctx, "check-in failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "attendee checked in", "attendee_id", att.ID, "repeat", !flipped)
	httputil.WriteJSON(w, http.StatusOK, checkInResponse{Attendee: fromAttendee(att), Repeat: !flipped})
}

type checkinLinkResponse struct {
	Token string `json:"token"`
}

// HandleCheckinLink handles GET /attendees/{ticketToken}/checkin-link
// requests, minting a signed short-lived token for door staff.
func (h *Handler) HandleCheckinLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	att, err := h.attendees.FindByTicketToken(ctx, chi.URLParam(r, "ticketToken"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown ticket"))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	signed, err := h.tickets.Issue(att.TicketToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checkinLinkResponse{Token: signed})
}

func writeReason(w http.ResponseWriter, reason attendee.Reason) {
	switch reason {
	case attendee.ReasonCapacityExceeded:
		httputil.WriteJSON(w, http.StatusConflict, map[string]string{"error": string(reason)})
	case attendee.ReasonEncryptionError:
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": string(reason)})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
	}
}

func registrationBody(result attendee.Result) map[string]any {
	return map[string]any{
		"attendee": fromAttendee(result.Attendee),
	}
}
