package scheduler

import (
	"time"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/pulse/budget"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
	"github.com/Diomandeee/learnnko-sub000/pulse/metrics"
	"github.com/Diomandeee/learnnko-sub000/pulse/schedule"
)

// recentFailures is how many error records a Report carries
const recentFailures = 10

// Report is the answer to "where is the scheduler at"
type Report struct {
	Now            time.Time  `json:"now"`
	LoopState      LoopState  `json:"loop_state"`
	SessionID      string     `json:"session_id,omitempty"`
	LastCheckpoint *time.Time `json:"last_checkpoint,omitempty"`

	JobsTotal     int `json:"jobs_total"`
	JobsProcessed int `json:"jobs_processed"`
	JobsFailed    int `json:"jobs_failed"`
	JobsPending   int `json:"jobs_pending"`

	Budget       budget.Status `json:"budget"`
	BudgetPaused bool          `json:"budget_paused"`
	PauseReason  string        `json:"pause_reason,omitempty"`
	EstimateUSD  float64       `json:"estimate_usd"`

	InWindow        bool          `json:"in_window"`
	NextOpening     *time.Time    `json:"next_opening,omitempty"`
	Interval        time.Duration `json:"interval_ns"`
	ETADays         int           `json:"eta_days"`
	ProjectedFinish *time.Time    `json:"projected_finish,omitempty"`

	Degraded       bool                     `json:"degraded"`
	RecentFailures []checkpoint.ErrorRecord `json:"recent_failures"`
}

// ReportInput is what BuildReport needs. Ledger is optional; without it
// spend comes from the checkpoint alone.
type ReportInput struct {
	Config *am.Config
	State  *checkpoint.State
	Jobs   []jobs.Job
	Ledger *budget.Ledger
	Now    time.Time
}

// BuildReport summarises state against cfg at in.Now
func BuildReport(in ReportInput) (Report, error) {
	w, err := schedule.NewWindow(in.Config.Schedule)
	if err != nil {
		return Report{}, err
	}
	now := in.Now.In(w.Location())
	date := budget.DateKey(now)

	r := Report{
		Now:            now,
		LoopState:      StateIdle,
		SessionID:      in.State.CurrentSessionID,
		LastCheckpoint: in.State.LastCheckpoint,
		JobsTotal:      len(in.Jobs),
		JobsProcessed:  in.State.TotalJobsProcessed,
		JobsFailed:     in.State.FailedCount(),
		JobsPending:    len(jobs.Pending(in.Jobs, in.State.IsAttempted)),
		EstimateUSD:    budget.EstimateJobCost(in.Config.Budget, in.State.TotalCost, in.State.AttemptedCount()),
		InWindow:       w.Contains(now),
		Interval:       schedule.Interval(in.Config.Throughput),
	}

	if in.Ledger != nil {
		r.Budget = in.Ledger.Status(date, in.Config.Budget)
	} else {
		r.Budget = statusFromState(in.State, date, in.Config.Budget)
	}

	if next, ok := w.NextOpening(now); ok {
		r.NextOpening = &next
	}
	r.ETADays = schedule.DaysToComplete(r.JobsPending, in.Config.Throughput)
	if finish, ok := schedule.ProjectFinish(w, now, r.JobsPending, in.Config.Throughput); ok {
		r.ProjectedFinish = &finish
	}

	errs := in.State.Errors
	if len(errs) > recentFailures {
		errs = errs[len(errs)-recentFailures:]
	}
	r.RecentFailures = append([]checkpoint.ErrorRecord(nil), errs...)
	return r, nil
}

func statusFromState(state *checkpoint.State, date string, cfg am.BudgetConfig) budget.Status {
	day := state.CostOn(date)
	st := budget.Status{
		Date:       date,
		DailySpent: day,
		DailyLimit: cfg.MaxDailyUSD,
		TotalSpent: state.TotalCost,
		TotalLimit: cfg.MaxTotalUSD,
	}
	if day < cfg.MaxDailyUSD {
		st.DailyRemaining = cfg.MaxDailyUSD - day
	}
	if state.TotalCost < cfg.MaxTotalUSD {
		st.TotalRemaining = cfg.MaxTotalUSD - state.TotalCost
	}
	return st
}

// Status reports the live scheduler
func (s *Scheduler) Status() Report {
	cfg := s.Config()
	now := s.clock.Now()

	s.mu.Lock()
	state := s.state.Clone()
	loopState := s.loopState
	degraded := s.degraded
	pauseReason := s.pauseReason
	s.mu.Unlock()

	r, err := BuildReport(ReportInput{Config: cfg, State: state, Jobs: s.jobs, Ledger: s.ledger, Now: now})
	if err != nil {
		// the installed snapshot always compiles
		r = Report{Now: now}
	}
	r.LoopState = loopState
	r.Degraded = degraded
	r.BudgetPaused = loopState == StateBudgetPaused
	r.PauseReason = pauseReason
	return r
}

// Snapshot builds the metrics snapshot for the live scheduler
func (s *Scheduler) Snapshot() metrics.Snapshot {
	r := s.Status()
	snap := metrics.Snapshot{
		Timestamp:     r.Now,
		SessionID:     r.SessionID,
		State:         string(r.LoopState),
		JobsTotal:     r.JobsTotal,
		JobsProcessed: r.JobsProcessed,
		JobsFailed:    r.JobsFailed,
		JobsPending:   r.JobsPending,
		SpentTodayUSD: r.Budget.DailySpent,
		DailyLimitUSD: r.Budget.DailyLimit,
		SpentTotalUSD: r.Budget.TotalSpent,
		TotalLimitUSD: r.Budget.TotalLimit,
		BudgetPaused:  r.BudgetPaused,
		JobsPerHour:   s.throughput.JobsPerHour(r.Now),
		SuccessRate:   s.throughput.SuccessRate(),
		ETADays:       r.ETADays,
		ProjectedAt:   r.ProjectedFinish,
		Degraded:      r.Degraded,
	}
	metrics.FillHost(&snap)
	return snap
}
