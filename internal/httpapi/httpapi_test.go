package httpapi

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaycore/relaycore/internal/cacheio"
	"github.com/relaycore/relaycore/internal/events"
	"github.com/relaycore/relaycore/internal/guardrails"
	"github.com/relaycore/relaycore/internal/health"
	"github.com/relaycore/relaycore/internal/ledger"
	"github.com/relaycore/relaycore/internal/metrics"
	"github.com/relaycore/relaycore/internal/ratelimit"
	"github.com/relaycore/relaycore/internal/replay"
	"github.com/relaycore/relaycore/internal/repository"
	"github.com/relaycore/relaycore/internal/router"
	"github.com/relaycore/relaycore/internal/store"
)

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	c := cacheio.NewMemoryCache(time.Hour)
	t.Cleanup(c.Stop)

	repo := repository.New(c, s, repository.DefaultConfig())
	l := ledger.New(s)
	replayEngine := replay.New(l, repo, slog.Default())

	engine := router.New(router.Config{
		Providers: []router.ProviderConfig{
			{Name: "openai", AccuracyWeight: 0.9, TimeoutSeconds: 5, Budget: router.ProviderBudget{UnitCostPer1K: 0.001}},
		},
		DailyCap: 100, MonthlyCap: 1000,
		Handlers: map[string]router.Handler{
			"openai": func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				return map[string]any{"ok": true}, nil
			},
			"local": func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				return map[string]any{"provider": "local"}, nil
			},
		},
	})

	return Dependencies{
		Repository: repo,
		Ledger:     l,
		Replay:     replayEngine,
		Router:     engine,
		Guardrails: guardrails.New(100, 1000, 80),
		Health:     health.NewTracker(health.DefaultConfig()),
		Limiter:    ratelimit.New(ratelimit.Config{RatePerSecond: 1000, Burst: 1000}),
		Bus:        events.NewBus(),
		Metrics:    metrics.New(),
		Logger:     slog.Default(),
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	d := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return srv
}
