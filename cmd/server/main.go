package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketeer/internal/attendee"
	attendeehandler "ticketeer/internal/attendee/handler"
	"ticketeer/internal/audit"
	"ticketeer/internal/crypto"
	"ticketeer/internal/event"
	eventhandler "ticketeer/internal/event/handler"
	httpapi "ticketeer/internal/http"
	"ticketeer/internal/keyring"
	keyringhandler "ticketeer/internal/keyring/handler"
	"ticketeer/internal/payment"
	paymenthandler "ticketeer/internal/payment/handler"
	"ticketeer/internal/platform/config"
	"ticketeer/internal/platform/httpserver"
	"ticketeer/internal/platform/logger"
	"ticketeer/internal/platform/metrics"
	"ticketeer/internal/platform/postgres"
	"ticketeer/internal/platform/redis"
	"ticketeer/internal/recordmap"
	"ticketeer/internal/session"
	sessionhandler "ticketeer/internal/session/handler"
	"ticketeer/internal/ticket"
)

const checkinLinkTTL = 24 * time.Hour

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()

	auditPublisher := audit.NewChanPublisher(256)
	auditWorker := audit.NewWorker(audit.NewPostgresStore(db), auditPublisher.Inbox(), log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	hasher := crypto.NewHasher(cfg.PasswordIterations, cfg.KDFParallelism,
		crypto.WithObserver(func(d time.Duration) {
			m.KDFDurationMs.Observe(float64(d.Milliseconds()))
		}))

	sessionStore := session.NewPostgresStore(db)
	var sessionCache session.Cache = session.NewMemoryCache(cfg.SessionCacheTTL)
	if redisClient, err := redis.New(ctx, cfg.RedisURL); err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	} else if redisClient != nil {
		defer redisClient.Close()
		sessionCache = session.NewRedisCache(redisClient, cfg.SessionCacheTTL)
		log.Info("session cache backed by redis")
	}

	throttle := session.NewThrottle(session.NewPostgresAttemptStore(db),
		cfg.LoginFailureThreshold, cfg.LoginLockoutDuration, log,
		session.WithThrottleAudit(auditPublisher), session.WithThrottleMetrics(m))

	keys := keyring.New(keyring.NewPostgresStore(db), hasher, log,
		keyring.WithAudit(auditPublisher), keyring.WithMetrics(m))
	sessions := session.New(sessionStore, sessionCache, throttle, keys, cfg.SessionTTL, log,
		session.WithAudit(auditPublisher), session.WithMetrics(m))
	// Rotation drops all sessions; wired after both sides exist.
	keyring.WithSessionInvalidator(sessions)(keys)

	events := event.NewPostgresStore(db)

	schema, err := attendee.NewSchema(keys)
	if err != nil {
		log.Error("build attendee schema", "error", err)
		os.Exit(1)
	}
	mapper := recordmap.NewMapper(schema, recordmap.NewSQLStore(db, schema))
	attendees := attendee.New(events, mapper, attendee.NewPostgresGuard(db), keys, log,
		attendee.WithAudit(auditPublisher), attendee.WithMetrics(m))

	payments := payment.New(payment.NewPostgresStore(db), cfg.StaleReservation, log,
		payment.WithAudit(auditPublisher), payment.WithMetrics(m))

	tickets := ticket.NewIssuer(cfg.CheckinSigningKey, checkinLinkTTL)

	router := httpapi.New(httpapi.Deps{
		Sessions:  sessions,
		Keyring:   keyringhandler.New(keys, log),
		Auth:      sessionhandler.New(sessions, log),
		Events:    eventhandler.New(events, log),
		Attendees: attendeehandler.New(attendees, events, tickets, log),
		Payments:  paymenthandler.New(payments, attendees, log),
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting ticketeer", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	auditPublisher.Close()
}
