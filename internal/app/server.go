// Package app wires together the router, repository, ledger, and replay
// engine into a single running server, alongside the ambient HTTP,
// logging, metrics, and tracing concerns.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/relaycore/relaycore/internal/cacheio"
	"github.com/relaycore/relaycore/internal/config"
	"github.com/relaycore/relaycore/internal/events"
	"github.com/relaycore/relaycore/internal/guardrails"
	"github.com/relaycore/relaycore/internal/health"
	"github.com/relaycore/relaycore/internal/httpapi"
	"github.com/relaycore/relaycore/internal/ledger"
	"github.com/relaycore/relaycore/internal/logging"
	"github.com/relaycore/relaycore/internal/metrics"
	"github.com/relaycore/relaycore/internal/ports"
	"github.com/relaycore/relaycore/internal/providerhttp"
	"github.com/relaycore/relaycore/internal/ratelimit"
	"github.com/relaycore/relaycore/internal/replay"
	"github.com/relaycore/relaycore/internal/replaywf"
	"github.com/relaycore/relaycore/internal/repository"
	"github.com/relaycore/relaycore/internal/router"
	"github.com/relaycore/relaycore/internal/store"
	"github.com/relaycore/relaycore/internal/tracing"
)

// Server owns every long-lived dependency and the HTTP router that
// exposes them.
type Server struct {
	cfg config.Config

	logger *slog.Logger
	reg    *metrics.Registry

	cache   ports.CachePort
	durable ports.DurableStorePort

	repo       *repository.Repository
	ledger     *ledger.Ledger
	replay     *replay.Engine
	router     *router.Engine
	guardrails *guardrails.ThresholdGuardrails
	health     *health.Tracker
	limiter    *ratelimit.Limiter
	bus        *events.Bus
	temporal   *replaywf.Manager

	tracingShutdown func(context.Context) error

	mu      sync.RWMutex
	handler http.Handler
}

// NewServer constructs a Server from cfg. Provider handlers not
// supplied in handlers fall back to a JSON-over-HTTP client when the
// provider has an endpoint, and otherwise to a stub that always errors,
// so a misconfigured provider fails loudly at route time rather than
// silently routing nowhere.
func NewServer(cfg config.Config, handlers map[string]router.Handler) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)
	reg := metrics.New()

	tracingShutdown, err := tracing.Setup(tracing.Config{
		Enabled: cfg.TracingEnabled, Endpoint: cfg.OTLPEndpoint, ServiceName: "relaycore",
	})
	if err != nil {
		return nil, fmt.Errorf("app: tracing setup: %w", err)
	}

	durable, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	if err := durable.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("app: migrate store: %w", err)
	}

	cache := openCache(cfg)

	repo := repository.New(cache, durable, repository.Config{
		CacheTTL:        cfg.CacheTTL,
		MaxRetries:      cfg.RepoMaxRetry,
		Logger:          logger,
		OnSaveLatencyMs: reg.RepositorySaveLatency.Observe,
		OnGetLatencyMs:  reg.RepositoryGetLatency.Observe,
		OnCacheHit:      reg.CacheHitsTotal.Inc,
		OnCacheMiss:     reg.CacheMissesTotal.Inc,
		OnRepoError:     func(op string) { reg.RepositoryErrorsTotal.WithLabelValues(op).Inc() },
	})
	sessionLedger := ledger.New(durable)
	replayEngine := replay.New(sessionLedger, repo, logger)

	var temporalManager *replaywf.Manager
	if cfg.TemporalEnabled {
		temporalManager, err = replaywf.NewManager(replaywf.Config{
			HostPort: cfg.TemporalHostPort, Namespace: cfg.TemporalNamespace, TaskQueue: cfg.TemporalTaskQueue,
		}, &replaywf.Activities{Engine: replayEngine})
		if err != nil {
			return nil, fmt.Errorf("app: start temporal worker: %w", err)
		}
		if err := temporalManager.Start(); err != nil {
			return nil, fmt.Errorf("app: temporal worker start: %w", err)
		}
		logger.Info("temporal replay worker started", "task_queue", temporalManager.TaskQueue())
	}

	bus := events.NewBus()
	healthTracker := health.NewTracker(health.DefaultConfig(), health.WithEventBus(bus))

	providers := make([]router.ProviderConfig, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, router.ProviderConfig{
			Name: p.Name, Endpoint: p.Endpoint,
			LatencyWeight: p.LatencyWeight, CostWeight: p.CostWeight, AccuracyWeight: p.AccuracyWeight,
			MaxTokens: p.MaxTokens, TimeoutSeconds: p.TimeoutSeconds,
			Budget: router.ProviderBudget{
				UnitCostPer1K: p.UnitCostPer1000, LatencyMs: p.TargetLatencyMs,
			},
			Failover: p.FailoverFor,
		})
	}
	resolvedHandlers := resolveHandlers(providers, handlers)

	routingEngine := router.New(router.Config{
		Providers: providers, DailyCap: cfg.RouterDailyCap, MonthlyCap: cfg.RouterMonthlyCap,
		Handlers: resolvedHandlers, Logger: logger,
		Health:   healthTracker,
		Metrics: &router.Metrics{
			DecisionsTotal: reg.RouteDecisionsTotal,
			BudgetRejected: reg.BudgetRejectedTotal,
			BreakerTrips:   reg.BreakerTripsTotal,
			CostUSDTotal:   reg.CostUSDTotal,
		},
	})

	thresholdGuardrails := guardrails.New(cfg.RouterDailyCap, cfg.RouterMonthlyCap, cfg.GuardrailPercent)
	routingEngine.AttachGuardrails(thresholdGuardrails.Observe)
	routingEngine.AttachGuardrails(func(d router.RoutingDecision) {
		bus.Publish(events.Event{
			Type: eventTypeForDecision(d), Timestamp: d.Timestamp,
			Provider: d.Provider, Reason: d.Reason, EstimatedCost: d.EstimatedCost,
		})
	})

	limiter := ratelimit.New(ratelimit.Config{
		RatePerSecond: cfg.RateLimitPerSec, Burst: cfg.RateLimitBurst, MaxKeys: cfg.RateLimitMaxKeys,
	}, ratelimit.WithRejectedCounter(reg.RateLimitedTotal))

	s := &Server{
		cfg: cfg, logger: logger, reg: reg,
		cache: cache, durable: durable,
		repo: repo, ledger: sessionLedger, replay: replayEngine, router: routingEngine,
		guardrails: thresholdGuardrails, health: healthTracker, limiter: limiter, bus: bus,
		temporal:        temporalManager,
		tracingShutdown: tracingShutdown,
	}
	s.rebuildHandler()
	return s, nil
}

func eventTypeForDecision(d router.RoutingDecision) events.Type {
	if d.Reason == "failover" {
		return events.TypeRouteError
	}
	return events.TypeRouteSuccess
}

// resolveHandlers prefers a caller-supplied handler for a given
// provider (useful in tests), falls back to a generic JSON-over-HTTP
// client when the provider has an endpoint configured, and otherwise
// reports misconfiguration loudly at route time rather than routing
// nowhere silently.
func resolveHandlers(providers []router.ProviderConfig, supplied map[string]router.Handler) map[string]router.Handler {
	out := make(map[string]router.Handler, len(providers)+1)
	for _, p := range providers {
		switch {
		case supplied[p.Name] != nil:
			out[p.Name] = supplied[p.Name]
		case p.Endpoint != "":
			out[p.Name] = providerhttp.NewClient(p.Endpoint).Handler()
		default:
			out[p.Name] = unconfiguredHandler(p.Name)
		}
	}
	if h, ok := supplied["local"]; ok {
		out["local"] = h
	} else {
		out["local"] = providerhttp.LocalEcho
	}
	return out
}

func unconfiguredHandler(name string) router.Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("app: provider %q has no configured handler", name)
	}
}

func openStore(cfg config.Config) (ports.DurableStorePort, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewPostgres(cfg.StoreDSN)
	default:
		return store.NewSQLite(cfg.StoreDSN)
	}
}

func openCache(cfg config.Config) ports.CachePort {
	switch cfg.CacheDriver {
	case "redis":
		return cacheio.NewRedisCache(cfg.RedisAddr, 0)
	default:
		return cacheio.NewMemoryCache(time.Minute)
	}
}

func (s *Server) rebuildHandler() {
	deps := httpapi.Dependencies{
		Repository: s.repo, Ledger: s.ledger, Replay: s.replay, Router: s.router,
		Guardrails: s.guardrails, Health: s.health, Limiter: s.limiter, Bus: s.bus,
		Metrics: s.reg, Logger: s.logger, AdminToken: s.cfg.AdminToken,
	}
	h := httpapi.NewRouter(deps)
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Router returns the current HTTP handler. Safe for concurrent use
// with Reload.
func (s *Server) Router() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Reload re-applies the log level from the Config the Server was built
// with (the environment is not read again) and swaps the HTTP handler,
// without interrupting in-flight requests on the old handler value.
func (s *Server) Reload() {
	logging.SetLevel(s.cfg.LogLevel)
	s.rebuildHandler()
	s.logger.Info("configuration reloaded")
}

// Close releases every owned resource.
func (s *Server) Close(ctx context.Context) error {
	if s.temporal != nil {
		s.temporal.Stop()
	}
	if mc, ok := s.cache.(*cacheio.MemoryCache); ok {
		mc.Stop()
	}
	if rc, ok := s.cache.(*cacheio.RedisCache); ok {
		_ = rc.Close()
	}
	if err := s.durable.Close(); err != nil {
		s.logger.Error("closing durable store", "error", err)
	}
	if s.tracingShutdown != nil {
		return s.tracingShutdown(ctx)
	}
	return nil
}
