package schedule

import (
	"time"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/internal/util"
)

// Interval is the pause after each dispatch:
// max(24h / jobs_per_day, min_interval_seconds).
func Interval(cfg am.ThroughputConfig) time.Duration {
	minimum := time.Duration(cfg.MinIntervalSeconds) * time.Second
	if cfg.JobsPerDay <= 0 {
		return maxDuration(24*time.Hour, minimum)
	}
	spread := time.Duration(float64(24*time.Hour) / float64(cfg.JobsPerDay))
	return maxDuration(spread, minimum)
}

// EffectiveJobsPerDay is the daily throughput the interval actually permits
func EffectiveJobsPerDay(cfg am.ThroughputConfig) int {
	interval := Interval(cfg)
	if interval <= 0 {
		return cfg.JobsPerDay
	}
	perDay := int((24 * time.Hour) / interval)
	if cfg.JobsPerDay > 0 && perDay > cfg.JobsPerDay {
		perDay = cfg.JobsPerDay
	}
	return util.MaxInt(perDay, 1)
}

// DaysToComplete is the number of active days needed for pending jobs
func DaysToComplete(pending int, cfg am.ThroughputConfig) int {
	return util.CeilDiv(pending, EffectiveJobsPerDay(cfg))
}

// ProjectFinish returns the active date on which pending jobs would finish,
// starting from now. ok is false when the window closes first.
func ProjectFinish(w *Window, now time.Time, pending int, cfg am.ThroughputConfig) (finish time.Time, ok bool) {
	days := DaysToComplete(pending, cfg)
	if days == 0 {
		return now, true
	}
	dates := w.ActiveDates(now, days)
	if len(dates) < days {
		return time.Time{}, false
	}
	return dates[len(dates)-1], true
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
