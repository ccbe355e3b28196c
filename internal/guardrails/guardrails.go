// Package guardrails provides a concrete AttachGuardrails sink that
// tracks budget-utilization history and raises alerts once spend
// crosses a configurable percentage of either cap.
package guardrails

import (
	"fmt"
	"sync"
	"time"

	"github.com/relaycore/relaycore/internal/router"
)

// Alert records a single threshold breach.
type Alert struct {
	Kind        string // "daily" or "monthly"
	Message     string
	Utilization float64
	Timestamp   time.Time
}

// Snapshot is a point-in-time view of budget utilization, derived from
// a RoutingDecision's BudgetSnapshot.
type Snapshot struct {
	DailyCap     float64
	MonthlyCap   float64
	DailySpend   float64
	MonthlySpend float64
	Timestamp    time.Time
}

// RemainingDaily returns the remaining daily cap.
func (s Snapshot) RemainingDaily() float64 {
	if r := s.DailyCap - s.DailySpend; r > 0 {
		return r
	}
	return 0
}

// RemainingMonthly returns the remaining monthly cap.
func (s Snapshot) RemainingMonthly() float64 {
	if r := s.MonthlyCap - s.MonthlySpend; r > 0 {
		return r
	}
	return 0
}

// ThresholdGuardrails is a router.GuardrailFunc-compatible sink that
// records every decision's budget snapshot and appends an Alert once
// utilization crosses ThresholdPercent of either cap.
type ThresholdGuardrails struct {
	dailyCap         float64
	monthlyCap       float64
	thresholdPercent float64

	mu      sync.Mutex
	history []Snapshot
	alerts  []Alert
}

// New constructs a ThresholdGuardrails sink. A thresholdPercent of 0
// defaults to 80, matching the reference FinOps guardrail default.
func New(dailyCap, monthlyCap, thresholdPercent float64) *ThresholdGuardrails {
	if thresholdPercent <= 0 {
		thresholdPercent = 80.0
	}
	return &ThresholdGuardrails{dailyCap: dailyCap, monthlyCap: monthlyCap, thresholdPercent: thresholdPercent}
}

// Observe implements router.GuardrailFunc: it is registered via
// engine.AttachGuardrails(g.Observe).
func (g *ThresholdGuardrails) Observe(decision router.RoutingDecision) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dailySpend := g.dailyCap - decision.BudgetSnapshot.Daily
	monthlySpend := g.monthlyCap - decision.BudgetSnapshot.Monthly
	snapshot := Snapshot{
		DailyCap: g.dailyCap, MonthlyCap: g.monthlyCap,
		DailySpend: dailySpend, MonthlySpend: monthlySpend,
		Timestamp: decision.Timestamp,
	}
	g.history = append(g.history, snapshot)
	g.evaluateThreshold(snapshot)
}

func (g *ThresholdGuardrails) evaluateThreshold(snapshot Snapshot) {
	var dailyUtil, monthlyUtil float64
	if g.dailyCap > 0 {
		dailyUtil = (snapshot.DailySpend / g.dailyCap) * 100
	}
	if g.monthlyCap > 0 {
		monthlyUtil = (snapshot.MonthlySpend / g.monthlyCap) * 100
	}
	if dailyUtil >= g.thresholdPercent {
		g.alerts = append(g.alerts, Alert{
			Kind: "daily", Utilization: dailyUtil, Timestamp: snapshot.Timestamp,
			Message: fmt.Sprintf("daily cap %.2f nearly exhausted", g.dailyCap),
		})
	}
	if monthlyUtil >= g.thresholdPercent {
		g.alerts = append(g.alerts, Alert{
			Kind: "monthly", Utilization: monthlyUtil, Timestamp: snapshot.Timestamp,
			Message: fmt.Sprintf("monthly cap %.2f nearly exhausted", g.monthlyCap),
		})
	}
}

// Alerts returns every alert raised so far.
func (g *ThresholdGuardrails) Alerts() []Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Alert, len(g.alerts))
	copy(out, g.alerts)
	return out
}

// History returns every snapshot recorded so far.
func (g *ThresholdGuardrails) History() []Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Snapshot, len(g.history))
	copy(out, g.history)
	return out
}

// LatestSnapshot returns the most recent snapshot, if any.
func (g *ThresholdGuardrails) LatestSnapshot() (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.history) == 0 {
		return Snapshot{}, false
	}
	return g.history[len(g.history)-1], true
}

// Reset clears history and alerts.
func (g *ThresholdGuardrails) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = nil
	g.alerts = nil
}
