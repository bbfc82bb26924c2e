// Package httpapi assembles the HTTP surface. Handlers live with their
// domains; this package only mounts them and the cross-cutting middleware.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attendeehandler "ticketeer/internal/attendee/handler"
	eventhandler "ticketeer/internal/event/handler"
	keyringhandler "ticketeer/internal/keyring/handler"
	paymenthandler "ticketeer/internal/payment/handler"
	"ticketeer/internal/session"
	sessionhandler "ticketeer/internal/session/handler"
)

// Registrar mounts routes on a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// AuthRegistrar mounts routes that require an authenticated session.
type AuthRegistrar interface {
	RegisterAuthenticated(r chi.Router)
}

// Deps carries the constructed handlers into the router.
type Deps struct {
	Sessions  *session.Service
	Keyring   *keyringhandler.Handler
	Auth      *sessionhandler.Handler
	Events    *eventhandler.Handler
	Attendees *attendeehandler.Handler
	Payments  *paymenthandler.Handler
}

// New builds the full router.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		for _, h := range []Registrar{deps.Keyring, deps.Auth, deps.Events, deps.Attendees, deps.Payments} {
			h.Register(api)
		}
		api.Group(func(authed chi.Router) {
			authed.Use(deps.Sessions.Middleware)
			for _, h := range []AuthRegistrar{deps.Keyring, deps.Auth, deps.Events, deps.Attendees} {
				h.RegisterAuthenticated(authed)
			}
		})
	})
	return r
}
