// Package session owns authenticated admin sessions: issuance, cached
// lookup, bulk invalidation on password rotation, and login throttling.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is the stored shape. Only the SHA-256 hash of the bearer token
// is persisted; the raw token exists once, in the login response.
type Session struct {
	TokenHash string
	CSRFToken string
	AdminID   string
	// WrappedDataKey is the admin's data key sealed under a key derived
	// from the raw token. Only a request presenting the token can open it;
	// nothing persisted can.
	WrappedDataKey []byte
	ExpiresAt      time.Time
	Created        time.Time
}

// Expired reports whether the session is past its lifetime at the given
// instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Auth is what a successful login hands back to the transport layer. The
// data key is request-scoped plaintext key material: it goes into the
// caller's context and nowhere else.
type Auth struct {
	Token     string
	CSRFToken string
	AdminID   string
	ExpiresAt time.Time
	DataKey   []byte
}

// HashToken maps a raw bearer token to its storage key.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
