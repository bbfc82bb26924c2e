// Package handler wires event management endpoints to the event store.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ticketeer/internal/event"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/httputil"
	"ticketeer/pkg/platform/sentinel"
)

type Handler struct {
	events event.Store
	logger *slog.Logger
}

func New(events event.Store, logger *slog.Logger) *Handler {
	return &Handler{events: events, logger: logger}
}

// Register mounts the public read endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/events/{slug}", h.HandleGet)
}

// RegisterAuthenticated mounts management endpoints.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/events", h.HandleCreate)
	r.Get("/events", h.HandleList)
	r.Delete("/events/{id}", h.HandleDelete)
}

type createRequest struct {
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	MaxAttendees int    `json:"max_attendees"`
	UnitPrice    int    `json:"unit_price"`
	Active       bool   `json:"active"`
}

type eventResponse struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	MaxAttendees int       `json:"max_attendees"`
	UnitPrice    int       `json:"unit_price,omitempty"`
	Active       bool      `json:"active"`
	Created      time.Time `json:"created"`
}

func fromEvent(e *event.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		Slug:         e.Slug,
		Title:        e.Title,
		Description:  e.Description,
		MaxAttendees: e.MaxAttendees,
		UnitPrice:    e.UnitPrice,
		Active:       e.Active,
		Created:      e.Created,
	}
}

// HandleCreate handles POST /events requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[createRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	switch {
	case req.Slug == "":
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "slug is required"))
		return
	case req.Title == "":
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "title is required"))
		return
	case req.MaxAttendees < 1:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "max_attendees must be at least 1"))
		return
	}

	e := &event.Event{
		ID:           uuid.NewString(),
		Slug:         req.Slug,
		Title:        req.Title,
		Description:  req.Description,
		MaxAttendees: req.MaxAttendees,
		UnitPrice:    req.UnitPrice,
		Active:       req.Active,
	}
	if err := h.events.Create(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "slug already in use"))
			return
		}
		h.logger.ErrorContext(ctx, "create event failed", "slug", req.Slug, "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "event created", "slug", e.Slug, "max_attendees", e.MaxAttendees)
	httputil.WriteJSON(w, http.StatusCreated, fromEvent(e))
}

// HandleGet handles GET /events/{slug} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.FindBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromEvent(e))
}

// HandleList handles GET /events requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, fromEvent(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /events/{id} requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.events.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
