package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsCreated       prometheus.Counter
	CapacityRejections         prometheus.Counter
	EncryptionFailures         prometheus.Counter
	StaleReservationsRecovered prometheus.Counter
	ReservationConflicts       prometheus.Counter
	PasswordRotations          prometheus.Counter
	LoginLockouts              prometheus.Counter
	SessionCacheHits           prometheus.Counter
	SessionCacheMisses         prometheus.Counter
	KDFDurationMs              prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_registrations_created_total",
			Help: "Total number of attendees successfully registered",
		}),
		CapacityRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_capacity_rejections_total",
			Help: "Registrations rejected because the event was full",
		}),
		EncryptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_encryption_failures_total",
			Help: "Registrations aborted because PII sealing was unavailable",
		}),
		StaleReservationsRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_stale_reservations_recovered_total",
			Help: "Abandoned payment reservations reclaimed by a later attempt",
		}),
		ReservationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_reservation_conflicts_total",
			Help: "Payment reservations rejected because the session was already reserved",
		}),
		PasswordRotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_password_rotations_total",
			Help: "Successful admin password rotations",
		}),
		LoginLockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_login_lockouts_total",
			Help: "Lockouts applied after repeated login failures",
		}),
		SessionCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_session_cache_hits_total",
			Help: "Session lookups served from the cache",
		}),
		SessionCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketeer_session_cache_misses_total",
			Help: "Session lookups that fell through to the store",
		}),
		KDFDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticketeer_kdf_duration_ms",
			Help:    "Latency of password derivation calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
}
