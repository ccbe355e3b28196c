package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrBudgetExceeded is raised when the pre-estimated cost of the next
// attempt would exceed either the daily or monthly cap. It is terminal
// for the current Route call: no further candidates are tried.
var ErrBudgetExceeded = errors.New("router: budget exceeded")

// localProviderName names the synthetic fallback used when every
// candidate provider fails.
const localProviderName = "local"

// Metrics are the counters an Engine increments alongside routing
// decisions. A nil field is skipped.
type Metrics struct {
	DecisionsTotal *prometheus.CounterVec // labels: provider, reason
	BudgetRejected *prometheus.CounterVec // labels: provider
	BreakerTrips   *prometheus.CounterVec // labels: provider
	CostUSDTotal   *prometheus.CounterVec // labels: provider
}

// Config constructs an Engine.
type Config struct {
	Providers  []ProviderConfig
	DailyCap   float64
	MonthlyCap float64
	Handlers   map[string]Handler
	Logger     *slog.Logger
	Metrics    *Metrics

	// Health, if set, pre-filters down providers out of ordering and
	// receives every attempt outcome. Nil disables the filter entirely
	// (every configured provider remains eligible).
	Health HealthChecker
}

// Engine routes tasks across providers while enforcing budget caps and
// per-provider circuit breaking. Budget and breaker state are mutated
// under a single mutex so concurrent Route calls observe mutually
// exclusive updates, per §5.
type Engine struct {
	mu sync.Mutex

	providers    []ProviderConfig
	providerByID map[string]ProviderConfig
	handlers     map[string]Handler
	budget       *budget
	breaker      *breaker
	history      []RoutingDecision
	auditLog     []AuditEntry
	guardrails   []GuardrailFunc

	logger  *slog.Logger
	metrics *Metrics
	health  HealthChecker
}

// New constructs an Engine. Providers are stored in the order given;
// ties in provider ordering are broken by this insertion order.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		byID[p.Name] = p
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	return &Engine{
		providers:    cfg.Providers,
		providerByID: byID,
		handlers:     handlers,
		budget:       newBudget(cfg.DailyCap, cfg.MonthlyCap),
		breaker:      newBreaker(),
		logger:       logger,
		metrics:      cfg.Metrics,
		health:       cfg.Health,
	}
}

// EstimateCost estimates cost for tokens against a named provider.
func (e *Engine) EstimateCost(providerName string, tokens int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.providerByID[providerName]
	if !ok {
		return 0, fmt.Errorf("router: unknown provider %q", providerName)
	}
	return estimateCost(p, tokens), nil
}

// RecordSpend adds amount to both the daily and monthly trackers.
func (e *Engine) RecordSpend(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budget.record(amount)
}

// RemainingBudget returns the current daily/monthly headroom.
func (e *Engine) RemainingBudget() BudgetSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget.remaining()
}

// BudgetStatus returns current cumulative spend against caps.
func (e *Engine) BudgetStatus() BudgetState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget.status()
}

// ResetBudget clears tracked spend and every provider's breaker count.
func (e *Engine) ResetBudget() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budget.reset()
	e.breaker.reset()
}

// AttachGuardrails registers a sink invoked after every recorded
// decision. Multiple sinks may be attached; each is called in order.
func (e *Engine) AttachGuardrails(fn GuardrailFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guardrails = append(e.guardrails, fn)
}

// AuditTrail returns an immutable snapshot of routing history.
func (e *Engine) AuditTrail() []RoutingDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RoutingDecision, len(e.history))
	copy(out, e.history)
	return out
}

// AuditLog returns an immutable snapshot of the compliance audit log.
func (e *Engine) AuditLog() []AuditEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AuditEntry, len(e.auditLog))
	copy(out, e.auditLog)
	return out
}

// orderedProviders returns providers ranked for task_type: primary is
// the provider whose name matches task_type; secondary is every
// provider listing task_type in its own failover set, sorted by
// descending accuracy weight; if neither exists, every provider is
// tried in descending accuracy-weight order. Ties break by insertion
// order (Go's sort.SliceStable preserves the original slice order).
func (e *Engine) orderedProviders(taskType string) []ProviderConfig {
	var primary []ProviderConfig
	var secondary []ProviderConfig
	for _, p := range e.providers {
		if e.health != nil && !e.health.IsAvailable(p.Name) {
			continue
		}
		if p.Name == taskType {
			primary = append(primary, p)
			continue
		}
		if containsString(p.Failover, taskType) {
			secondary = append(secondary, p)
		}
	}
	if len(primary) == 0 && len(secondary) == 0 {
		all := make([]ProviderConfig, 0, len(e.providers))
		for _, p := range e.providers {
			if e.health != nil && !e.health.IsAvailable(p.Name) {
				continue
			}
			all = append(all, p)
		}
		sortByAccuracyDesc(all)
		return all
	}
	sortByAccuracyDesc(secondary)
	return append(primary, secondary...)
}

func sortByAccuracyDesc(providers []ProviderConfig) {
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].AccuracyWeight > providers[j].AccuracyWeight
	})
}

// tokensFromPayload reads payload["tokens"], tolerating either an int
// (set directly by Go callers) or a float64 (the shape JSON decoding
// always produces), defaulting to 1000 only when the key is absent
// entirely — an explicit zero is preserved as zero, matching the
// reference router's `payload.get("tokens", 1000)`.
func tokensFromPayload(payload map[string]any) int {
	v, ok := payload["tokens"]
	if !ok {
		return 1000
	}
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 1000
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Route selects a provider, enforces budgets, invokes the handler with
// a timeout, and records spend and an audit entry on success. On
// transient failure it fails over to the next candidate; if every
// candidate fails it invokes the local handler unconditionally.
func (e *Engine) Route(ctx context.Context, task Task, payload map[string]any) (Response, error) {
	e.mu.Lock()
	ordered := e.orderedProviders(task.Type)
	primaryName := ""
	if len(ordered) > 0 {
		primaryName = ordered[0].Name
	}
	e.mu.Unlock()

	var lastErr error
	for _, p := range ordered {
		resp, attempted, err := e.attempt(ctx, p, payload, p.Name == primaryName)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrBudgetExceeded) {
			return Response{}, err
		}
		if attempted {
			lastErr = err
		}
	}

	return e.localFallback(ctx, payload, lastErr)
}

// attempt runs the per-attempt algorithm in §4.1 steps 1-7 for a single
// candidate provider. attempted reports whether the candidate got past
// its breaker check (false only when skipped by the breaker), which
// distinguishes a "never tried" candidate from a "tried and failed" one
// for the total-failure fallback's last-error reporting.
func (e *Engine) attempt(ctx context.Context, p ProviderConfig, payload map[string]any, isPrimary bool) (Response, bool, error) {
	e.mu.Lock()
	if e.breaker.tripped(p.Name) {
		e.mu.Unlock()
		return Response{}, false, fmt.Errorf("router: provider %s breaker tripped", p.Name)
	}

	tokens := tokensFromPayload(payload)
	if tokens > p.MaxTokens {
		tokens = p.MaxTokens
	}
	cost := estimateCost(p, tokens)

	if e.budget.wouldExceed(cost) {
		e.mu.Unlock()
		if e.metrics != nil && e.metrics.BudgetRejected != nil {
			e.metrics.BudgetRejected.WithLabelValues(p.Name).Inc()
		}
		return Response{}, true, fmt.Errorf("%w: provider %s cost %.6f", ErrBudgetExceeded, p.Name, cost)
	}
	e.mu.Unlock()

	handler, ok := e.handlers[p.Name]
	if !ok {
		return Response{}, true, fmt.Errorf("router: no handler registered for provider %s", p.Name)
	}

	timeout := time.Duration(p.TimeoutSeconds * float64(time.Second))
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := handler(attemptCtx, payload)
	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		e.mu.Lock()
		e.breaker.recordFailure(p.Name)
		e.mu.Unlock()
		if e.health != nil {
			e.health.RecordError(p.Name, err.Error())
		}
		if e.metrics != nil && e.metrics.BreakerTrips != nil {
			e.metrics.BreakerTrips.WithLabelValues(p.Name).Inc()
		}
		e.logger.Warn("provider failed, trying next candidate", "provider", p.Name, "error", err)
		return Response{}, true, err
	}
	if e.health != nil {
		e.health.RecordSuccess(p.Name, elapsedMs)
	}

	e.mu.Lock()
	e.budget.record(cost)
	reason := "best_score"
	if !isPrimary {
		reason = "failover"
	}
	decision := e.recordDecision(p.Name, reason, cost, p.Budget.LatencyMs, map[string]any{"failover": !isPrimary})
	e.mu.Unlock()

	if e.metrics != nil {
		if e.metrics.DecisionsTotal != nil {
			e.metrics.DecisionsTotal.WithLabelValues(p.Name, reason).Inc()
		}
		if e.metrics.CostUSDTotal != nil {
			e.metrics.CostUSDTotal.WithLabelValues(p.Name).Add(cost)
		}
	}

	e.notifyGuardrails(decision)
	return Response{Provider: p.Name, Payload: result, Decision: decision}, true, nil
}

// localFallback invokes the local handler unconditionally, recording a
// failover decision with estimated_cost=0 and attaching the last error.
func (e *Engine) localFallback(ctx context.Context, payload map[string]any, lastErr error) (Response, error) {
	e.logger.Error("all providers failed, invoking local fallback", "error", lastErr)

	handler, ok := e.handlers[localProviderName]
	if !ok {
		return Response{}, fmt.Errorf("router: all providers failed and no local handler registered: %w", lastErr)
	}

	result, err := handler(ctx, payload)
	if err != nil {
		return Response{}, fmt.Errorf("router: local fallback failed: %w", err)
	}

	e.mu.Lock()
	meta := map[string]any{"reason": "failover"}
	if lastErr != nil {
		meta["error"] = lastErr.Error()
	}
	decision := e.recordDecision(localProviderName, "failover", 0, 0, meta)
	e.mu.Unlock()

	if e.metrics != nil && e.metrics.DecisionsTotal != nil {
		e.metrics.DecisionsTotal.WithLabelValues(localProviderName, "failover").Inc()
	}

	e.notifyGuardrails(decision)
	resp := Response{Provider: localProviderName, Payload: result, Decision: decision}
	if lastErr != nil {
		resp.Error = lastErr.Error()
	}
	return resp, nil
}

// recordDecision must be called with e.mu held.
func (e *Engine) recordDecision(provider, reason string, cost, latencyBudget float64, metadata map[string]any) RoutingDecision {
	metadata["reason"] = reason
	decision := RoutingDecision{
		Provider:       provider,
		Reason:         reason,
		EstimatedCost:  cost,
		LatencyBudget:  latencyBudget,
		BudgetSnapshot: e.budget.remaining(),
		Timestamp:      time.Now().UTC(),
		Metadata:       metadata,
	}
	e.history = append(e.history, decision)
	e.auditLog = append(e.auditLog, AuditEntry{
		Provider: provider, Timestamp: decision.Timestamp,
		Budget: decision.BudgetSnapshot, Metadata: metadata,
	})
	return decision
}

// notifyGuardrails fires every attached guardrail sink; panics and
// errors are caught and logged so they never affect routing.
func (e *Engine) notifyGuardrails(decision RoutingDecision) {
	e.mu.Lock()
	sinks := make([]GuardrailFunc, len(e.guardrails))
	copy(sinks, e.guardrails)
	e.mu.Unlock()

	for _, sink := range sinks {
		e.safeNotify(sink, decision)
	}
}

func (e *Engine) safeNotify(sink GuardrailFunc, decision RoutingDecision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("guardrail callback panicked", "panic", r)
		}
	}()
	sink(decision)
}
