// Package handler wires setup and password rotation to the key hierarchy.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketeer/internal/keyring"
	"ticketeer/internal/session"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/httputil"
)

type Handler struct {
	keys   *keyring.Service
	logger *slog.Logger
}

func New(keys *keyring.Service, logger *slog.Logger) *Handler {
	return &Handler{keys: keys, logger: logger}
}

// Register mounts the one-time setup endpoint. It is public by necessity:
// before setup there is no credential to authenticate with. The service
// rejects a second setup.
func (h *Handler) Register(r chi.Router) {
	r.Post("/setup", h.HandleSetup)
}

// RegisterAuthenticated mounts rotation behind the session middleware.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/auth/password", h.HandleRotatePassword)
}

type setupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleSetup handles POST /setup requests.
func (h *Handler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[setupRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.keys.CompleteSetup(ctx, req.Username, req.Password); err != nil {
		h.logger.WarnContext(ctx, "setup rejected", "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "setup completed", "username", req.Username)
	w.WriteHeader(http.StatusCreated)
}

type rotateRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleRotatePassword handles POST /auth/password requests. A failed
// rotation answers 401 with the same body regardless of cause; the state
// of the key hierarchy is never readable from this endpoint.
func (h *Handler) HandleRotatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := session.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, err := httputil.Decode[rotateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "old and new passwords are required"))
		return
	}

	cred, err := h.keys.FindCredential(ctx, sess.AdminID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rotated, err := h.keys.RotatePassword(ctx, cred.Username, req.OldPassword, req.NewPassword)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !rotated {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}
	h.logger.InfoContext(ctx, "password rotated", "admin_id", sess.AdminID)
	// Rotation invalidated this session along with every other one.
	w.WriteHeader(http.StatusNoContent)
}
