package router

// budget tracks cumulative daily/monthly spend against caps. All
// mutation happens under the owning Engine's mutex; budget itself holds
// no lock of its own.
type budget struct {
	state BudgetState
}

func newBudget(dailyCap, monthlyCap float64) *budget {
	return &budget{state: BudgetState{DailyCap: dailyCap, MonthlyCap: monthlyCap}}
}

// estimateCost computes (tokens/1000) * unit_cost.
func estimateCost(p ProviderConfig, tokens int) float64 {
	return (float64(tokens) / 1000.0) * p.Budget.UnitCostPer1K
}

func (b *budget) remaining() BudgetSnapshot {
	daily := b.state.DailyCap - b.state.DailySpend
	if daily < 0 {
		daily = 0
	}
	monthly := b.state.MonthlyCap - b.state.MonthlySpend
	if monthly < 0 {
		monthly = 0
	}
	return BudgetSnapshot{Daily: daily, Monthly: monthly}
}

// wouldExceed reports whether spending amount would breach either cap.
func (b *budget) wouldExceed(amount float64) bool {
	remaining := b.remaining()
	return amount > remaining.Daily || amount > remaining.Monthly
}

func (b *budget) record(amount float64) {
	b.state.DailySpend += amount
	b.state.MonthlySpend += amount
}

func (b *budget) status() BudgetState {
	return b.state
}

func (b *budget) reset() {
	b.state.DailySpend = 0
	b.state.MonthlySpend = 0
}
