package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	// CheckinSigningKey signs short-lived check-in link tokens.
	CheckinSigningKey string

	// PasswordIterations controls the PBKDF2 cost for new verifiers. Old
	// verifiers keep working because parameters are embedded in the format.
	PasswordIterations int
	// KDFParallelism bounds concurrent password-derivation calls so the
	// CPU-bound KDF cannot starve request handling.
	KDFParallelism int64

	SessionTTL      time.Duration
	SessionCacheTTL time.Duration

	LoginFailureThreshold int
	LoginLockoutDuration  time.Duration

	// StaleReservation is how long a pending payment reservation may sit
	// before it is treated as abandoned and reclaimed.
	StaleReservation time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. Production deployments override DATABASE_URL and the signing key.
func FromEnv() Config {
	return Config{
		Addr:                  envStr("TICKETEER_ADDR", ":8080"),
		DatabaseURL:           envStr("DATABASE_URL", "postgres://localhost:5432/ticketeer?sslmode=disable"),
		RedisURL:              os.Getenv("REDIS_URL"),
		CheckinSigningKey:     envStr("CHECKIN_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PasswordIterations:    envInt("PASSWORD_ITERATIONS", 210000),
		KDFParallelism:        int64(envInt("KDF_PARALLELISM", 4)),
		SessionTTL:            envDuration("SESSION_TTL", 12*time.Hour),
		SessionCacheTTL:       envDuration("SESSION_CACHE_TTL", 30*time.Second),
		LoginFailureThreshold: envInt("LOGIN_FAILURE_THRESHOLD", 5),
		LoginLockoutDuration:  envDuration("LOGIN_LOCKOUT_DURATION", 15*time.Minute),
		StaleReservation:      envDuration("STALE_RESERVATION", 30*time.Minute),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
