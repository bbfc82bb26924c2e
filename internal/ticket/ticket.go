// Package ticket issues and verifies signed check-in link tokens. The
// token authorizes one scan flow for one attendee; the attendee's opaque
// ticket_token stays the durable identifier, this wrapper just bounds how
// long a generated link stays usable.
package ticket

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "ticketeer/pkg/domain-errors"
)

const issuerName = "ticketeer"

// Issuer signs and verifies HS256 check-in tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIssuer(key string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{key: []byte(key), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Issue signs a token carrying the attendee's ticket token as subject.
func (i *Issuer) Issue(ticketToken string) (string, error) {
	if ticketToken == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ticket token is required")
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuerName,
		Subject:   ticketToken,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign check-in token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the embedded ticket
// token. Every failure collapses to one unauthorized answer.
func (i *Issuer) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(issuerName), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid check-in token")
	}
	return claims.Subject, nil
}
