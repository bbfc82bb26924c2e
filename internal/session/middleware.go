package session

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"ticketeer/internal/keyring"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/httputil"
)

// CookieName carries the raw bearer token between requests.
const CookieName = "ticketeer_session"

type contextKey struct{}

// FromContext returns the authenticated session placed by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}

// Middleware authenticates the request, reopens the session's data key and
// places both on the request context. Mutating requests must also present
// the session's CSRF token.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := bearerToken(r)
		if rawToken == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
			return
		}

		sess, err := s.Resolve(r.Context(), rawToken)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		if mutating(r.Method) && !csrfMatch(r.Header.Get("X-CSRF-Token"), sess.CSRFToken) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing or invalid csrf token"))
			return
		}

		dataKey, err := s.DataKeyFor(rawToken, sess)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, sess)
		ctx = keyring.WithDataKey(ctx, dataKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func csrfMatch(presented, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
