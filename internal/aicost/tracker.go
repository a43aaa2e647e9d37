// Package aicost tracks estimated spend on AI extraction calls and enforces
// daily/monthly budgets, matching monitoring/ai_cost_tracker.py's
// AICostTracker but backed by atomic counters instead of an in-memory entry
// list, per the concurrency model's process-wide AI-cost counter.
package aicost

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status mirrors ai_cost_tracker.py's BudgetStatus enum.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusExceeded Status = "exceeded"
)

// modelCosts gives approximate USD cost per 1000 tokens, matching
// ai_cost_tracker.py's MODEL_COSTS table.
var modelCosts = map[string][2]float64{
	"gpt-4o":           {0.005, 0.015},
	"gpt-4o-mini":      {0.00015, 0.0006},
	"gpt-4-turbo":      {0.01, 0.03},
	"claude-3-opus":    {0.015, 0.075},
	"claude-3-sonnet":  {0.003, 0.015},
	"claude-3-haiku":   {0.00025, 0.00125},
	"claude-sonnet-4":  {0.003, 0.015},
}

// EstimateCost returns the approximate USD cost of a call, falling back to
// gpt-4o-mini pricing for an unrecognized model.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	costs, ok := modelCosts[model]
	if !ok {
		costs = modelCosts["gpt-4o-mini"]
	}
	return (float64(inputTokens)/1000)*costs[0] + (float64(outputTokens)/1000)*costs[1]
}

// Tracker accumulates AI spend in micro-cents (1/1,000,000 USD) via atomic
// counters, resetting the daily counter at UTC midnight and the monthly
// counter on the 1st, checked under a mutex since the reset decision itself
// is not atomic.
type Tracker struct {
	dailyLimitUSD   float64
	monthlyLimitUSD float64

	mu          sync.Mutex
	dayStart    time.Time
	monthStart  time.Time
	dailyMicros atomic.Int64
	monMicros   atomic.Int64
}

// New builds a Tracker with the given daily/monthly USD limits, read from
// AI_DAILY_BUDGET_USD/AI_MONTHLY_BUDGET_USD.
func New(dailyLimitUSD, monthlyLimitUSD float64) *Tracker {
	now := time.Now().UTC()
	return &Tracker{
		dailyLimitUSD:   dailyLimitUSD,
		monthlyLimitUSD: monthlyLimitUSD,
		dayStart:        dayStart(now),
		monthStart:      monthStart(now),
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// rollIfNeeded resets the daily/monthly counters when the wall clock has
// crossed into a new UTC day or month since the last recorded call.
func (t *Tracker) rollIfNeeded() {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	if ds := dayStart(now); ds.After(t.dayStart) {
		t.dayStart = ds
		t.dailyMicros.Store(0)
	}
	if ms := monthStart(now); ms.After(t.monthStart) {
		t.monthStart = ms
		t.monMicros.Store(0)
	}
}

// Record logs an AI API call's estimated cost, updating both the daily and
// monthly running totals.
func (t *Tracker) Record(costUSD float64) {
	t.rollIfNeeded()
	micros := int64(costUSD * 1_000_000)
	t.dailyMicros.Add(micros)
	t.monMicros.Add(micros)
}

// BudgetCheck is the result of a budget check, matching
// ai_cost_tracker.py's BudgetCheck dataclass.
type BudgetCheck struct {
	Status           Status  `json:"status"`
	DailyUsedUSD     float64 `json:"daily_used_usd"`
	DailyLimitUSD    float64 `json:"daily_limit_usd"`
	MonthlyUsedUSD   float64 `json:"monthly_used_usd"`
	MonthlyLimitUSD  float64 `json:"monthly_limit_usd"`
	CanProceed       bool    `json:"can_proceed"`
	Message          string  `json:"message"`
}

// Check reports the current budget status. Thresholds match
// ai_cost_tracker.py's check_budget: >=100% used is exceeded, >=90% is
// critical (still allowed), >=70% is warning, else ok.
func (t *Tracker) Check() BudgetCheck {
	t.rollIfNeeded()

	dailyUsed := float64(t.dailyMicros.Load()) / 1_000_000
	monthlyUsed := float64(t.monMicros.Load()) / 1_000_000

	dailyPct, monthlyPct := 0.0, 0.0
	if t.dailyLimitUSD > 0 {
		dailyPct = dailyUsed / t.dailyLimitUSD
	}
	if t.monthlyLimitUSD > 0 {
		monthlyPct = monthlyUsed / t.monthlyLimitUSD
	}
	maxPct := dailyPct
	if monthlyPct > maxPct {
		maxPct = monthlyPct
	}

	check := BudgetCheck{
		DailyUsedUSD:    dailyUsed,
		DailyLimitUSD:   t.dailyLimitUSD,
		MonthlyUsedUSD:  monthlyUsed,
		MonthlyLimitUSD: t.monthlyLimitUSD,
	}

	switch {
	case maxPct >= 1.0:
		check.Status = StatusExceeded
		check.CanProceed = false
		check.Message = "budget exceeded - AI operations paused"
	case maxPct >= 0.9:
		check.Status = StatusCritical
		check.CanProceed = true
		check.Message = "budget critical (>90%)"
	case maxPct >= 0.7:
		check.Status = StatusWarning
		check.CanProceed = true
		check.Message = "budget warning (>70%)"
	default:
		check.Status = StatusOK
		check.CanProceed = true
		check.Message = "budget ok"
	}

	return check
}

// CanProceed is a convenience wrapper for the gate the AI extraction stage
// checks before every call: "checked before every AI extraction call".
func (t *Tracker) CanProceed() bool {
	return t.Check().CanProceed
}
