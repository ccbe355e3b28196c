package app

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/relaycore/relaycore/internal/config"
	"github.com/relaycore/relaycore/internal/router"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	os.Setenv("RELAYCORE_STORE_DRIVER", "sqlite")
	os.Setenv("RELAYCORE_STORE_DSN", ":memory:")
	os.Setenv("RELAYCORE_CACHE_DRIVER", "memory")
	os.Setenv("RELAYCORE_PROVIDERS", "openai:accuracy=0.9")
	t.Cleanup(func() {
		os.Unsetenv("RELAYCORE_STORE_DRIVER")
		os.Unsetenv("RELAYCORE_STORE_DSN")
		os.Unsetenv("RELAYCORE_CACHE_DRIVER")
		os.Unsetenv("RELAYCORE_PROVIDERS")
	})
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestNewServerServesHealthz(t *testing.T) {
	cfg := testConfig(t)
	handlers := map[string]router.Handler{
		"openai": func(ctx context.Context, payload map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	}
	srv, err := NewServer(cfg, handlers)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close(context.Background()) })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReloadSwapsHandlerWithoutError(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close(context.Background()) })

	before := srv.Router()
	srv.Reload()
	after := srv.Router()
	if before == after {
		t.Fatal("expected Reload to rebuild the handler")
	}
}

func TestUnconfiguredProviderFallsBackToLocal(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close(context.Background()) })

	_, err = srv.router.Route(context.Background(), router.Task{Type: "openai", Tokens: 10}, map[string]any{"tokens": 10})
	if err != nil {
		t.Fatalf("expected local fallback to succeed, got %v", err)
	}
}
