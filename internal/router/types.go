// Package router implements the Model Router: provider selection, budget
// enforcement, per-provider circuit breaking, and failover across a
// pluggable provider-handler table.
package router

import (
	"context"
	"time"
)

// ProviderBudget names the unit cost and target latency used in cost
// estimation and decision snapshots.
type ProviderBudget struct {
	UnitCostPer1K float64
	LatencyMs     float64
}

// ProviderConfig describes one routable provider. Providers are
// immutable after router construction.
type ProviderConfig struct {
	Name           string
	Endpoint       string
	LatencyWeight  float64
	CostWeight     float64
	AccuracyWeight float64
	MaxTokens      int
	Budget         ProviderBudget
	Failover       []string
	TimeoutSeconds float64
}

// Task describes the caller's routing request: a type used to select a
// primary/secondary provider ordering, plus the token count of the
// payload about to be sent.
type Task struct {
	Type   string
	Tokens int
}

// RoutingDecision records the outcome of a route call for audit and
// guardrail purposes. Once appended to history it is never mutated.
type RoutingDecision struct {
	Provider       string
	Reason         string
	EstimatedCost  float64
	LatencyBudget  float64
	BudgetSnapshot BudgetSnapshot
	Timestamp      time.Time
	Metadata       map[string]any
}

// BudgetSnapshot is the remaining daily/monthly budget at decision time.
type BudgetSnapshot struct {
	Daily   float64
	Monthly float64
}

// BudgetState tracks cumulative spend against configured caps.
type BudgetState struct {
	DailySpend   float64
	MonthlySpend float64
	DailyCap     float64
	MonthlyCap   float64
}

// AuditEntry is an immutable compliance-log record appended alongside
// every RoutingDecision.
type AuditEntry struct {
	Provider  string
	Timestamp time.Time
	Budget    BudgetSnapshot
	Metadata  map[string]any
}

// Response is returned by Route: the provider handler's raw output in
// Payload, alongside the routing decision (which carries the timestamp)
// and, on the local fallback path, the last provider error.
type Response struct {
	Provider string
	Payload  map[string]any
	Decision RoutingDecision
	Error    string
}

// GuardrailFunc is invoked after every recorded decision. Panics and
// errors from the callback are caught and logged; they never affect
// routing.
type GuardrailFunc func(RoutingDecision)

// Handler is a provider adapter: an opaque request payload in, a
// structured response out. A Handler must return ctx.Err() (or wrap it)
// when exceeding the router's per-provider deadline; any other error is
// treated as a transient failure.
type Handler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// HealthChecker is the optional availability pre-filter an Engine
// consults ahead of its own weighted ordering, and reports every
// attempt outcome to. Satisfied by *health.Tracker.
type HealthChecker interface {
	IsAvailable(providerID string) bool
	RecordSuccess(providerID string, latencyMs float64)
	RecordError(providerID string, errMsg string)
}
