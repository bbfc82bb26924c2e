// Package handler receives payment-provider webhooks and drives the
// reserve-register-finalize settlement flow.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketeer/internal/attendee"
	"ticketeer/internal/payment"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/httputil"
)

type Handler struct {
	payments  *payment.Service
	attendees *attendee.Service
	logger    *slog.Logger
}

func New(payments *payment.Service, attendees *attendee.Service, logger *slog.Logger) *Handler {
	return &Handler{payments: payments, attendees: attendees, logger: logger}
}

// Register mounts the webhook endpoint. Providers deliver at least once;
// everything here must tolerate replays.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.HandleWebhook)
}

type webhookRequest struct {
	PaymentSessionID string `json:"payment_session_id"`
	Status           string `json:"status"`
	EventID          string `json:"event_id"`

	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	Quantity  int     `json:"quantity"`
	PricePaid *string `json:"price_paid,omitempty"`
}

// HandleWebhook handles POST /payments/webhook requests.
//
// The settlement order is reserve, register, finalize. A reservation that
// cannot be carried through to a registered attendee is released so the
// provider-side refund leaves no dangling row behind.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[webhookRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.PaymentSessionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "payment_session_id is required"))
		return
	}
	if req.Status != "paid" {
		// Non-settlement events are acknowledged and dropped so the
		// provider stops retrying them.
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// Cheap replay short-circuit before touching the reservation row.
	processed, err := h.payments.Processed(ctx, req.PaymentSessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if processed {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "already_processed"})
		return
	}

	claim, err := h.payments.Reserve(ctx, req.PaymentSessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !claim.Reserved {
		if claim.Existing != nil && !claim.Existing.Pending() {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "already_processed"})
			return
		}
		// Another delivery of this session is mid-flight; the provider
		// retries and finds it settled.
		httputil.WriteJSON(w, http.StatusConflict, map[string]string{"status": "in_flight"})
		return
	}

	result, err := h.attendees.Register(ctx, attendee.Params{
		EventID:   req.EventID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		PaymentID: &req.PaymentSessionID,
		PricePaid: req.PricePaid,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.release(ctx, req.PaymentSessionID)
		h.logger.ErrorContext(ctx, "webhook registration failed", "session", req.PaymentSessionID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if !result.Registered() {
		// Paid but not seated: release the reservation and tell the caller
		// to refund through the provider.
		h.release(ctx, req.PaymentSessionID)
		status := http.StatusConflict
		if result.Reason == attendee.ReasonEncryptionError {
			status = http.StatusServiceUnavailable
		}
		h.logger.WarnContext(ctx, "paid registration rejected",
			"session", req.PaymentSessionID, "reason", result.Reason)
		httputil.WriteJSON(w, status, map[string]any{
			"error":           string(result.Reason),
			"refund_required": true,
		})
		return
	}

	if err := h.payments.Finalize(ctx, req.PaymentSessionID, result.Attendee.ID); err != nil {
		h.logger.ErrorContext(ctx, "finalize failed", "session", req.PaymentSessionID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "payment settled",
		"session", req.PaymentSessionID, "attendee_id", result.Attendee.ID)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "settled",
		"attendee_id":  result.Attendee.ID,
		"ticket_token": result.Attendee.TicketToken,
	})
}

func (h *Handler) release(ctx context.Context, sessionID string) {
	if err := h.payments.Release(ctx, sessionID); err != nil {
		h.logger.ErrorContext(ctx, "release reservation failed", "session", sessionID, "error", err)
	}
}
