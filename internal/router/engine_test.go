package router

import (
	"context"
	"errors"
	"testing"
)

func providers() []ProviderConfig {
	return []ProviderConfig{
		{Name: "openai", AccuracyWeight: 0.9, MaxTokens: 8000, TimeoutSeconds: 1, Budget: ProviderBudget{UnitCostPer1K: 0.02}},
		{Name: "anthropic", AccuracyWeight: 0.85, MaxTokens: 8000, TimeoutSeconds: 1, Budget: ProviderBudget{UnitCostPer1K: 0.03}},
		{Name: "local", AccuracyWeight: 0.1, MaxTokens: 8000, TimeoutSeconds: 1, Budget: ProviderBudget{UnitCostPer1K: 0.0}},
	}
}

func echoHandler(name string) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"provider": name}, nil
	}
}

func failHandler(err error) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return nil, err
	}
}

// Scenario 1 (§8): happy-path route.
func TestRouteHappyPath(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision.Provider != "openai" {
		t.Fatalf("expected openai, got %s", resp.Decision.Provider)
	}
	if resp.Decision.Reason != "best_score" {
		t.Fatalf("expected best_score, got %s", resp.Decision.Reason)
	}
	remaining := e.RemainingBudget()
	if want := 450 - 0.02; remaining.Daily != want {
		t.Fatalf("expected remaining daily %.6f, got %.6f", want, remaining.Daily)
	}
	if len(e.AuditTrail()) != 1 {
		t.Fatalf("expected audit trail length 1, got %d", len(e.AuditTrail()))
	}
}

// Scenario 2 (§8): failover.
func TestRouteFailover(t *testing.T) {
	ps := providers()
	ps[1].Failover = []string{"openai"}
	e := New(Config{
		Providers: ps, DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai":    failHandler(context.DeadlineExceeded),
			"anthropic": echoHandler("anthropic"),
			"local":     echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision.Provider != "anthropic" {
		t.Fatalf("expected anthropic, got %s", resp.Decision.Provider)
	}
	if resp.Decision.Reason != "failover" {
		t.Fatalf("expected failover, got %s", resp.Decision.Reason)
	}
	if failover, _ := resp.Decision.Metadata["failover"].(bool); !failover {
		t.Fatal("expected metadata failover=true")
	}
}

// Scenario 3 (§8): budget exceeded.
func TestRouteBudgetExceeded(t *testing.T) {
	e := New(Config{
		Providers: []ProviderConfig{
			{Name: "openai", AccuracyWeight: 0.9, MaxTokens: 8000, TimeoutSeconds: 1, Budget: ProviderBudget{UnitCostPer1K: 0.01}},
		},
		DailyCap: 0.005, MonthlyCap: 0.01,
		Handlers: map[string]Handler{"openai": echoHandler("openai")},
	})

	_, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 2000}, map[string]any{"tokens": 2000})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	status := e.BudgetStatus()
	if status.DailySpend != 0 {
		t.Fatalf("expected no spend recorded, got %.6f", status.DailySpend)
	}
	if len(e.AuditTrail()) != 0 {
		t.Fatal("expected no audit entry appended")
	}
}

func TestRouteTotalFailureInvokesLocalFallback(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai":    failHandler(errors.New("boom")),
			"anthropic": failHandler(errors.New("boom")),
			"local":     echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision.Provider != "local" {
		t.Fatalf("expected local fallback, got %s", resp.Decision.Provider)
	}
	if resp.Decision.EstimatedCost != 0 {
		t.Fatalf("expected zero estimated cost for local fallback, got %.6f", resp.Decision.EstimatedCost)
	}
	if resp.Error == "" {
		t.Fatal("expected last error attached to response")
	}
}

func TestBreakerSkipsProviderAtThreeFailures(t *testing.T) {
	callCount := 0
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				callCount++
				return nil, errors.New("boom")
			},
			"anthropic": echoHandler("anthropic"),
			"local":     echoHandler("local"),
		},
	})

	for i := 0; i < 4; i++ {
		if _, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000}); err != nil {
			t.Fatalf("unexpected error on route %d: %v", i, err)
		}
	}

	if callCount != 3 {
		t.Fatalf("expected openai handler invoked 3 times before breaker trips, got %d", callCount)
	}
}

func TestResetBudgetClearsSpendAndBreakers(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})
	_, _ = e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	for i := 0; i < 3; i++ {
		e.breaker.recordFailure("openai")
	}
	e.ResetBudget()
	status := e.BudgetStatus()
	if status.DailySpend != 0 || status.MonthlySpend != 0 {
		t.Fatal("expected spend cleared after reset")
	}
	if e.breaker.tripped("openai") {
		t.Fatal("expected breakers cleared after reset")
	}
}

func TestRouteWithExplicitZeroTokensCostsNothing(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 0}, map[string]any{"tokens": 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision.EstimatedCost != 0 {
		t.Fatalf("expected explicit zero tokens to cost 0, got %.6f", resp.Decision.EstimatedCost)
	}
}

func TestRouteWithoutTokensKeyDefaultsToOneThousand(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai"}, map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := providers()[0].Budget.UnitCostPer1K * 1
	if resp.Decision.EstimatedCost != want {
		t.Fatalf("expected default of 1000 tokens to cost %.6f, got %.6f", want, resp.Decision.EstimatedCost)
	}
}

func TestEstimateCost(t *testing.T) {
	e := New(Config{Providers: providers(), DailyCap: 450, MonthlyCap: 12000})
	cost, err := e.EstimateCost("openai", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost != 0.02 {
		t.Fatalf("expected 0.02, got %.6f", cost)
	}
}

// fakeHealth is a minimal HealthChecker recording calls without any of
// internal/health's threshold/cooldown logic, so the engine's own use
// of the contract can be tested in isolation.
type fakeHealth struct {
	down      map[string]bool
	successes map[string]float64
	errors    map[string]string
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{down: map[string]bool{}, successes: map[string]float64{}, errors: map[string]string{}}
}

func (f *fakeHealth) IsAvailable(providerID string) bool   { return !f.down[providerID] }
func (f *fakeHealth) RecordSuccess(providerID string, ms float64) { f.successes[providerID] = ms }
func (f *fakeHealth) RecordError(providerID string, msg string)   { f.errors[providerID] = msg }

func TestHealthCheckerRecordsAttemptOutcomes(t *testing.T) {
	fh := newFakeHealth()
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Health: fh,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})

	if _, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fh.successes["openai"]; !ok {
		t.Fatal("expected RecordSuccess to be called for openai")
	}

	fh2 := newFakeHealth()
	e2 := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Health: fh2,
		Handlers: map[string]Handler{
			"openai":    failHandler(errors.New("boom")),
			"anthropic": echoHandler("anthropic"),
			"local":     echoHandler("local"),
		},
	})
	if _, err := e2.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fh2.errors["openai"] != "boom" {
		t.Fatalf("expected RecordError to capture the handler error, got %q", fh2.errors["openai"])
	}
}

func TestHealthCheckerFiltersDownProviders(t *testing.T) {
	fh := newFakeHealth()
	fh.down["openai"] = true
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Health: fh,
		Handlers: map[string]Handler{
			"openai":    failHandler(errors.New("should never be called")),
			"anthropic": echoHandler("anthropic"),
			"local":     echoHandler("local"),
		},
	})

	resp, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "anthropic" {
		t.Fatalf("expected down provider to be skipped in favor of anthropic, got %s", resp.Provider)
	}
}

func TestGuardrailPanicIsSwallowed(t *testing.T) {
	e := New(Config{
		Providers: providers(), DailyCap: 450, MonthlyCap: 12000,
		Handlers: map[string]Handler{
			"openai": echoHandler("openai"), "anthropic": echoHandler("anthropic"), "local": echoHandler("local"),
		},
	})
	e.AttachGuardrails(func(router RoutingDecision) { panic("guardrail exploded") })

	_, err := e.Route(context.Background(), Task{Type: "openai", Tokens: 1000}, map[string]any{"tokens": 1000})
	if err != nil {
		t.Fatalf("expected guardrail panic to be swallowed, got error: %v", err)
	}
}
