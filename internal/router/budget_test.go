package router

import "testing"

func TestEstimateCostFormula(t *testing.T) {
	p := ProviderConfig{Budget: ProviderBudget{UnitCostPer1K: 0.02}}
	if got := estimateCost(p, 1000); got != 0.02 {
		t.Fatalf("expected 0.02, got %.9f", got)
	}
}

func TestWouldExceedChecksBothCaps(t *testing.T) {
	b := newBudget(10, 20)
	if b.wouldExceed(5) {
		t.Fatal("expected 5 within both caps")
	}
	if !b.wouldExceed(11) {
		t.Fatal("expected 11 to exceed daily cap")
	}
}

func TestRecordAndRemaining(t *testing.T) {
	b := newBudget(10, 20)
	b.record(4)
	remaining := b.remaining()
	if remaining.Daily != 6 {
		t.Fatalf("expected daily remaining 6, got %.6f", remaining.Daily)
	}
	if remaining.Monthly != 16 {
		t.Fatalf("expected monthly remaining 16, got %.6f", remaining.Monthly)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	b := newBudget(10, 20)
	b.record(15)
	remaining := b.remaining()
	if remaining.Daily != 0 {
		t.Fatalf("expected daily remaining clamped to 0, got %.6f", remaining.Daily)
	}
}

func TestResetClearsSpend(t *testing.T) {
	b := newBudget(10, 20)
	b.record(4)
	b.reset()
	if b.state.DailySpend != 0 || b.state.MonthlySpend != 0 {
		t.Fatal("expected spend cleared after reset")
	}
}
