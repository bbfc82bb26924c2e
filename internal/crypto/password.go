package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

const (
	verifierAlg = "pbkdf2-sha256"
	saltLen     = 16
	digestLen   = 32
)

// Hasher derives password verifiers. The verifier format is self-describing
// (algorithm, iterations, salt, digest) so cost parameters can be raised
// without invalidating stored verifiers.
//
// Derivation is CPU-bound, so a weighted semaphore bounds how many KDF calls
// run at once; excess callers queue on their context instead of starving the
// scheduler.
type Hasher struct {
	iterations int
	sem        *semaphore.Weighted
	observe    func(time.Duration)
}

// HasherOption configures a Hasher.
type HasherOption func(*Hasher)

// WithObserver registers a latency callback, used to feed the KDF histogram.
func WithObserver(fn func(time.Duration)) HasherOption {
	return func(h *Hasher) {
		if fn != nil {
			h.observe = fn
		}
	}
}

// NewHasher constructs a Hasher with the given cost and concurrency bound.
func NewHasher(iterations int, parallelism int64, opts ...HasherOption) *Hasher {
	if iterations <= 0 {
		iterations = 210000
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	h := &Hasher{
		iterations: iterations,
		sem:        semaphore.NewWeighted(parallelism),
		observe:    func(time.Duration) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// HashPassword derives a fresh verifier for password and returns it together
// with the digest. The digest is the artifact later fed into KEK derivation;
// the raw password is never key material.
func (h *Hasher) HashPassword(ctx context.Context, password string) (string, []byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", nil, fmt.Errorf("generate salt: %w", err)
	}

	digest, err := h.derive(ctx, password, salt, h.iterations)
	if err != nil {
		return "", nil, err
	}

	verifier := strings.Join([]string{
		verifierAlg,
		strconv.Itoa(h.iterations),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	}, "$")
	return verifier, digest, nil
}

// VerifyPassword recomputes the digest using the verifier's own embedded
// parameters and compares in constant time. On success it returns the
// recomputed digest; on mismatch it returns ErrVerify.
func (h *Hasher) VerifyPassword(ctx context.Context, password, verifier string) ([]byte, error) {
	iterations, salt, want, err := parseVerifier(verifier)
	if err != nil {
		return nil, err
	}

	got, err := h.derive(ctx, password, salt, iterations)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return nil, ErrVerify
	}
	return got, nil
}

func (h *Hasher) derive(ctx context.Context, password string, salt []byte, iterations int) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire kdf slot: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	digest := pbkdf2.Key([]byte(password), salt, iterations, digestLen, sha256.New)
	h.observe(time.Since(start))
	return digest, nil
}

func parseVerifier(verifier string) (int, []byte, []byte, error) {
	parts := strings.Split(verifier, "$")
	if len(parts) != 4 || parts[0] != verifierAlg {
		return 0, nil, nil, ErrMalformedVerifier
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, ErrMalformedVerifier
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, nil, nil, ErrMalformedVerifier
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return 0, nil, nil, ErrMalformedVerifier
	}
	return iterations, salt, digest, nil
}
