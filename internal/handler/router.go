package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/meeting-assistant/internal/middleware"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

// RouterConfig holds what the API router serves.
type RouterConfig struct {
	Sessions    Sessions
	Attendees   StatsSource
	Events      EventReader // nil disables the events endpoint
	Checks      map[string]Check
	JWTSecret   string
	CORSOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	Heartbeat         time.Duration

	Log *logger.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	sessions := NewSessionHandler(cfg.Sessions, cfg.Log)
	if cfg.Events != nil {
		sessions.events = cfg.Events
		sessions.heartbeat = cfg.Heartbeat
	}
	health := NewHealthHandler(cfg.Checks)
	attendees := NewAttendeeHandler(cfg.Attendees)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/sessions", sessions.Routes)
		r.Get("/attendees/stats", attendees.Stats)
	})

	return r
}
