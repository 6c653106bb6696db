package am

import (
	"github.com/Diomandeee/learnnko-sub000/errors"
)

// Validate checks that the configuration is usable as a snapshot.
// Budget ceilings of 0 are valid (they mean "exhausted", not "unlimited").
func (c *Config) Validate() error {
	if err := c.Schedule.validate(); err != nil {
		return err
	}

	if c.Throughput.JobsPerDay <= 0 {
		return invalidf("throughput.jobs_per_day must be > 0, got %d", c.Throughput.JobsPerDay)
	}
	if c.Throughput.MinIntervalSeconds < 0 {
		return invalidf("throughput.min_interval_seconds must be >= 0, got %d", c.Throughput.MinIntervalSeconds)
	}
	if c.Throughput.JobTimeoutSeconds <= 0 {
		return invalidf("throughput.job_timeout_seconds must be > 0, got %d", c.Throughput.JobTimeoutSeconds)
	}

	if c.Budget.MaxDailyUSD < 0 {
		return invalidf("budget.max_daily_usd must be >= 0, got %f", c.Budget.MaxDailyUSD)
	}
	if c.Budget.MaxTotalUSD < 0 {
		return invalidf("budget.max_total_usd must be >= 0, got %f", c.Budget.MaxTotalUSD)
	}
	if c.Budget.EstimatedJobCostUSD < 0 {
		return invalidf("budget.estimated_job_cost_usd must be >= 0, got %f", c.Budget.EstimatedJobCostUSD)
	}
	if c.Budget.PausePollSeconds <= 0 {
		return invalidf("budget.pause_poll_seconds must be > 0, got %d", c.Budget.PausePollSeconds)
	}

	if c.Checkpoint.Path == "" {
		return invalidf("checkpoint.path cannot be empty")
	}
	if c.Checkpoint.Interval <= 0 {
		return invalidf("checkpoint.interval must be > 0, got %d", c.Checkpoint.Interval)
	}
	if c.Checkpoint.Backups < 0 {
		return invalidf("checkpoint.backups must be >= 0, got %d", c.Checkpoint.Backups)
	}

	switch c.WorkSource.Kind {
	case "file":
		if c.WorkSource.Path == "" {
			return invalidf("work_source.path cannot be empty for kind \"file\"")
		}
	case "http":
		if c.WorkSource.URL == "" {
			return invalidf("work_source.url cannot be empty for kind \"http\"")
		}
	default:
		return invalidf("work_source.kind must be \"file\" or \"http\", got %q", c.WorkSource.Kind)
	}

	switch c.Orchestrator.Kind {
	case "http":
		if c.Orchestrator.URL == "" {
			return invalidf("orchestrator.url cannot be empty for kind \"http\"")
		}
	case "command":
		argv, err := c.Orchestrator.Argv()
		if err != nil {
			return err
		}
		if len(argv) == 0 {
			return invalidf("orchestrator.command or orchestrator.command_line is required for kind \"command\"")
		}
	default:
		return invalidf("orchestrator.kind must be \"http\" or \"command\", got %q", c.Orchestrator.Kind)
	}

	switch c.Metrics.Sink {
	case "", "none", "log":
	case "redis":
		if c.Metrics.RedisURL == "" {
			return invalidf("metrics.redis_url cannot be empty for sink \"redis\"")
		}
	default:
		return invalidf("metrics.sink must be \"none\", \"log\" or \"redis\", got %q", c.Metrics.Sink)
	}

	return nil
}

func (s ScheduleConfig) validate() error {
	loc, err := s.Location()
	if err != nil {
		return err
	}
	start, end, err := s.Dates(loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return invalidf("schedule.end_date %s is before start_date %s", s.EndDate, s.StartDate)
	}

	h := s.ActiveHours
	if h.Start < 0 || h.Start > 23 {
		return invalidf("schedule.active_hours.start must be in [0,23], got %d", h.Start)
	}
	if h.End < 1 || h.End > 24 {
		return invalidf("schedule.active_hours.end must be in [1,24], got %d", h.End)
	}
	if h.End <= h.Start {
		return invalidf("schedule.active_hours must satisfy start < end, got [%d,%d)", h.Start, h.End)
	}

	if len(s.ActiveDays) == 0 {
		return invalidf("schedule.active_days cannot be empty")
	}
	if _, err := s.Days(); err != nil {
		return err
	}

	if s.PollIntervalSeconds <= 0 {
		return invalidf("schedule.poll_interval_seconds must be > 0, got %d", s.PollIntervalSeconds)
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrInvalidConfig, format, args...)
}
