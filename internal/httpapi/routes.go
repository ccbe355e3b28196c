// Package httpapi exposes the router, repository, ledger, and replay
// engine over HTTP: a small operational surface (route/sessions/ledger/
// replay) plus the admin/observability endpoints (budget, guardrails,
// health, audit, events, healthz, metrics).
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaycore/relaycore/internal/events"
	"github.com/relaycore/relaycore/internal/guardrails"
	"github.com/relaycore/relaycore/internal/health"
	"github.com/relaycore/relaycore/internal/ledger"
	"github.com/relaycore/relaycore/internal/logging"
	"github.com/relaycore/relaycore/internal/metrics"
	"github.com/relaycore/relaycore/internal/ratelimit"
	"github.com/relaycore/relaycore/internal/replay"
	"github.com/relaycore/relaycore/internal/repository"
	"github.com/relaycore/relaycore/internal/router"
)

// Dependencies bundles every subsystem a handler may need. Optional
// fields (Limiter, Bus) may be nil; handlers must treat nil as "feature
// disabled" rather than panic.
type Dependencies struct {
	Repository *repository.Repository
	Ledger     *ledger.Ledger
	Replay     *replay.Engine
	Router     *router.Engine
	Guardrails *guardrails.ThresholdGuardrails
	Health     *health.Tracker
	Limiter    *ratelimit.Limiter
	Bus        *events.Bus
	Metrics    *metrics.Registry
	Logger     *slog.Logger

	// AdminToken guards /admin/v1/*; empty disables auth (dev only).
	AdminToken string
}

// maxRequestBodySize bounds POST/PUT/PATCH bodies to 5 MB.
const maxRequestBodySize = 5 << 20

// NewRouter builds the full HTTP handler for a Server.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(logging.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	MountRoutes(r, d)
	return r
}

// MountRoutes attaches every relaycore route to r.
func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/healthz", HealthzHandler(d))
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(bodySizeLimit(maxRequestBodySize))
		if d.Limiter != nil {
			r.Use(rateLimitMiddleware(d.Limiter))
		}

		r.Post("/route", RouteHandler(d))

		r.Put("/sessions/{sessionID}", SaveStateHandler(d))
		r.Get("/sessions/{sessionID}", GetStateHandler(d))
		r.Delete("/sessions/{sessionID}", DeleteStateHandler(d))
		r.Get("/sessions/{sessionID}/integrity", ValidateIntegrityHandler(d))

		r.Post("/sessions/{sessionID}/ledger", AppendLedgerHandler(d))
		r.Get("/sessions/{sessionID}/ledger", FetchLedgerHandler(d))
		r.Post("/sessions/{sessionID}/replay", ReplaySessionHandler(d))

		r.Post("/replay/batch", ReplayBatchHandler(d))
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(bodySizeLimit(maxRequestBodySize))
		if d.AdminToken != "" {
			r.Use(adminAuthMiddleware(d.AdminToken))
		}

		r.Get("/budget", BudgetStatusHandler(d))
		r.Post("/budget/reset", BudgetResetHandler(d))
		r.Get("/audit", AuditLogHandler(d))
		r.Get("/guardrails/alerts", GuardrailAlertsHandler(d))
		r.Get("/guardrails/snapshot", GuardrailSnapshotHandler(d))
		r.Get("/health", HealthStatsHandler(d))
		if d.Bus != nil {
			r.Get("/events", SSEHandler(d.Bus))
		}
	})
}

func bodySizeLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware keys the limiter by remote address; deployments
// in front of a proxy should set RealIP ahead of this middleware (it
// runs after middleware.RealIP above).
func rateLimitMiddleware(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.RemoteAddr) {
				jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func adminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing admin token", http.StatusUnauthorized)
				return
			}
			provided := strings.TrimPrefix(auth, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				http.Error(w, "invalid admin token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
