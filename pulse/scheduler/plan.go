package scheduler

import (
	"math"
	"time"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/pulse/budget"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
	"github.com/Diomandeee/learnnko-sub000/pulse/schedule"
)

// Plan is a dry-run projection. Building it reads state and mutates nothing.
type Plan struct {
	Pending    int
	JobsPerDay int
	Interval   time.Duration
	ETADays    int

	Start           *time.Time // next window opening
	ProjectedFinish *time.Time // nil when the window closes first
	FitsWindow      bool

	EstimateUSD      float64
	ProjectedCostUSD float64
	SpentUSD         float64

	// BudgetJobsPerDay is how many jobs the daily ceiling pays for at the
	// estimate; 0 when there is no estimate to judge by
	BudgetJobsPerDay int
	// DaysUntilBudgetExhausted counts active days until the total ceiling is
	// reached at the projected daily spend; -1 when it never is
	DaysUntilBudgetExhausted int
	TotalBudgetCoversAll     bool
}

// BuildPlan projects how the pending work would run under cfg from now
func BuildPlan(cfg *am.Config, state *checkpoint.State, list []jobs.Job, now time.Time) (Plan, error) {
	w, err := schedule.NewWindow(cfg.Schedule)
	if err != nil {
		return Plan{}, err
	}
	pending := len(jobs.Pending(list, state.IsAttempted))
	estimate := budget.EstimateJobCost(cfg.Budget, state.TotalCost, state.AttemptedCount())
	perDay := schedule.EffectiveJobsPerDay(cfg.Throughput)

	p := Plan{
		Pending:                  pending,
		JobsPerDay:               perDay,
		Interval:                 schedule.Interval(cfg.Throughput),
		ETADays:                  schedule.DaysToComplete(pending, cfg.Throughput),
		EstimateUSD:              estimate,
		ProjectedCostUSD:         float64(pending) * estimate,
		SpentUSD:                 state.TotalCost,
		DaysUntilBudgetExhausted: -1,
	}

	if start, ok := w.NextOpening(now); ok {
		p.Start = &start
	}
	if finish, ok := schedule.ProjectFinish(w, now, pending, cfg.Throughput); ok {
		p.ProjectedFinish = &finish
		p.FitsWindow = true
	}

	remaining := cfg.Budget.MaxTotalUSD - state.TotalCost
	p.TotalBudgetCoversAll = p.ProjectedCostUSD <= math.Max(remaining, 0)

	if estimate > 0 {
		p.BudgetJobsPerDay = int(math.Floor(cfg.Budget.MaxDailyUSD / estimate))
		daily := math.Min(float64(perDay)*estimate, cfg.Budget.MaxDailyUSD)
		switch {
		case remaining <= 0:
			p.DaysUntilBudgetExhausted = 0
		case daily > 0:
			p.DaysUntilBudgetExhausted = int(math.Ceil(remaining / daily))
		}
	}
	return p, nil
}
