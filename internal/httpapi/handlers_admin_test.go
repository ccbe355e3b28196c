package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaycore/relaycore/internal/router"
)

func TestBudgetStatusRequiresAdminToken(t *testing.T) {
	d := newTestDeps(t)
	d.AdminToken = "secret"
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/admin/v1/budget")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBudgetStatusWithValidToken(t *testing.T) {
	d := newTestDeps(t)
	d.AdminToken = "secret"
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/v1/budget", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBudgetResetClearsSpend(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)

	d.Router.Route(context.Background(), router.Task{Type: "openai", Tokens: 100}, map[string]any{"tokens": 100})

	resp, err := http.Post(srv.URL+"/admin/v1/budget/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	status := d.Router.BudgetStatus()
	if status.DailySpend != 0 {
		t.Fatalf("expected spend reset to 0, got %f", status.DailySpend)
	}
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", out)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
