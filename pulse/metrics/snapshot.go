// Package metrics publishes periodic scheduler snapshots to an optional sink.
// Sink failures are logged and ignored; they never affect the loop.
package metrics

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// Snapshot is a point-in-time view of progress, spend and throughput
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`

	JobsTotal     int `json:"jobs_total"`
	JobsProcessed int `json:"jobs_processed"`
	JobsFailed    int `json:"jobs_failed"`
	JobsPending   int `json:"jobs_pending"`

	SpentTodayUSD float64 `json:"spent_today_usd"`
	DailyLimitUSD float64 `json:"daily_limit_usd"`
	SpentTotalUSD float64 `json:"spent_total_usd"`
	TotalLimitUSD float64 `json:"total_limit_usd"`
	BudgetPaused  bool    `json:"budget_paused"`

	JobsPerHour float64    `json:"jobs_per_hour"`
	SuccessRate float64    `json:"success_rate"`
	ETADays     int        `json:"eta_days"`
	ProjectedAt *time.Time `json:"projected_finish,omitempty"`

	Degraded bool `json:"degraded"`

	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Fields flattens the snapshot for a redis hash
func (s Snapshot) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"timestamp":       s.Timestamp.UTC().Format(time.RFC3339),
		"session_id":      s.SessionID,
		"state":           s.State,
		"jobs_total":      s.JobsTotal,
		"jobs_processed":  s.JobsProcessed,
		"jobs_failed":     s.JobsFailed,
		"jobs_pending":    s.JobsPending,
		"spent_today_usd": s.SpentTodayUSD,
		"daily_limit_usd": s.DailyLimitUSD,
		"spent_total_usd": s.SpentTotalUSD,
		"total_limit_usd": s.TotalLimitUSD,
		"budget_paused":   s.BudgetPaused,
		"jobs_per_hour":   s.JobsPerHour,
		"success_rate":    s.SuccessRate,
		"eta_days":        s.ETADays,
		"degraded":        s.Degraded,
		"memory_percent":  s.MemoryPercent,
	}
	if s.ProjectedAt != nil {
		f["projected_finish"] = s.ProjectedAt.UTC().Format(time.RFC3339)
	}
	return f
}

// memoryStats is swapped in tests
var memoryStats = func() (total, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// FillHost adds host memory usage; on failure the fields stay zero
func FillHost(s *Snapshot) {
	total, available, err := memoryStats()
	if err != nil || total == 0 {
		return
	}
	const gb = 1024 * 1024 * 1024
	s.MemoryTotalGB = float64(total) / gb
	s.MemoryUsedGB = float64(total-available) / gb
	s.MemoryPercent = s.MemoryUsedGB / s.MemoryTotalGB * 100
}

// Throughput tracks dispatch outcomes observed by this process
type Throughput struct {
	mu        sync.Mutex
	started   time.Time
	succeeded int
	failed    int
}

// NewThroughput starts tracking at start
func NewThroughput(start time.Time) *Throughput {
	return &Throughput{started: start}
}

// Observe records one dispatch outcome
func (t *Throughput) Observe(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		t.succeeded++
	} else {
		t.failed++
	}
}

// JobsPerHour is attempts per hour of wall time since start
func (t *Throughput) JobsPerHour(now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	hours := now.Sub(t.started).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(t.succeeded+t.failed) / hours
}

// SuccessRate is the completed share of attempts, 1 when nothing was attempted
func (t *Throughput) SuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	attempts := t.succeeded + t.failed
	if attempts == 0 {
		return 1
	}
	return float64(t.succeeded) / float64(attempts)
}
