package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Schedule window: every day, all day, no calendar bound chosen yet
	v.SetDefault("schedule.start_date", "2026-01-01")
	v.SetDefault("schedule.end_date", "2026-12-31")
	v.SetDefault("schedule.active_hours.start", 0)
	v.SetDefault("schedule.active_hours.end", 24)
	v.SetDefault("schedule.active_days", []string{
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	})
	v.SetDefault("schedule.timezone", "local")
	v.SetDefault("schedule.poll_interval_seconds", 300)

	// Throughput
	v.SetDefault("throughput.jobs_per_day", 16)
	v.SetDefault("throughput.min_interval_seconds", 60)
	v.SetDefault("throughput.job_timeout_seconds", 1800)

	// Budget
	v.SetDefault("budget.max_daily_usd", 5.0)
	v.SetDefault("budget.max_total_usd", 150.0)
	v.SetDefault("budget.pause_on_exceeded", true)
	v.SetDefault("budget.estimated_job_cost_usd", 0.0)
	v.SetDefault("budget.pause_poll_seconds", 600)

	// Checkpoint
	v.SetDefault("checkpoint.path", "data/scheduler_state.json")
	v.SetDefault("checkpoint.interval", 1)
	v.SetDefault("checkpoint.backups", 3)
	v.SetDefault("checkpoint.max_consecutive_failures", 3)

	// Ledger database
	v.SetDefault("database.path", "data/ledger.db")

	// Work source
	v.SetDefault("work_source.kind", "file")
	v.SetDefault("work_source.path", "data/videos.json")
	v.SetDefault("work_source.cache_dir", "data/cache")
	v.SetDefault("work_source.page_size", 100)
	v.SetDefault("work_source.requests_per_minute", 30)

	// Orchestrator
	v.SetDefault("orchestrator.kind", "http")
	v.SetDefault("orchestrator.url", "http://localhost:8900/analyze")

	// Training trigger
	v.SetDefault("training.timeout_seconds", 30)

	// Metrics
	v.SetDefault("metrics.sink", "log")
	v.SetDefault("metrics.schedule", "@every 5m")
	v.SetDefault("metrics.key", "nkosched:metrics")
	v.SetDefault("metrics.channel", "nkosched:metrics:updates")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("orchestrator.api_key", "NKO_ORCHESTRATOR_API_KEY")
	_ = v.BindEnv("metrics.redis_url", "NKO_REDIS_URL")
	_ = v.BindEnv("training.trigger_url", "NKO_TRAINING_TRIGGER_URL")
}

// String returns a short representation of the config for logs
func (c *Config) String() string {
	return fmt.Sprintf("Config{Window: %s..%s %02d-%02dh, JobsPerDay: %d, Daily: $%.2f, Total: $%.2f}",
		c.Schedule.StartDate, c.Schedule.EndDate,
		c.Schedule.ActiveHours.Start, c.Schedule.ActiveHours.End,
		c.Throughput.JobsPerDay, c.Budget.MaxDailyUSD, c.Budget.MaxTotalUSD)
}
