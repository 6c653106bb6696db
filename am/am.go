// Package am holds the scheduler configuration ("I am"): the schedule window,
// throughput, budget ceilings, checkpointing and the external collaborators.
//
// A *Config is an immutable snapshot. Reloads build a new snapshot and swap
// the pointer; nothing mutates a Config after Load returns it.
package am

import (
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// Config represents the complete scheduler configuration
type Config struct {
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Throughput   ThroughputConfig   `mapstructure:"throughput"`
	Budget       BudgetConfig       `mapstructure:"budget"`
	Checkpoint   CheckpointConfig   `mapstructure:"checkpoint"`
	Database     DatabaseConfig     `mapstructure:"database"`
	WorkSource   WorkSourceConfig   `mapstructure:"work_source"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Training     TrainingConfig     `mapstructure:"training"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ScheduleConfig is the calendar/time-of-day window in which dispatch is permitted
type ScheduleConfig struct {
	StartDate           string     `mapstructure:"start_date"`            // YYYY-MM-DD, inclusive
	EndDate             string     `mapstructure:"end_date"`              // YYYY-MM-DD, inclusive
	ActiveHours         HoursRange `mapstructure:"active_hours"`          // [start, end) in local hours
	ActiveDays          []string   `mapstructure:"active_days"`           // weekday names ("monday", "tue", ...)
	Timezone            string     `mapstructure:"timezone"`              // IANA name; empty = local
	PollIntervalSeconds int        `mapstructure:"poll_interval_seconds"` // sleep while outside the window
}

// HoursRange is a half-open hour range [Start, End)
type HoursRange struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// ThroughputConfig controls pacing between dispatches
type ThroughputConfig struct {
	JobsPerDay         int `mapstructure:"jobs_per_day"`
	MinIntervalSeconds int `mapstructure:"min_interval_seconds"`
	JobTimeoutSeconds  int `mapstructure:"job_timeout_seconds"` // per-dispatch timeout
}

// BudgetConfig contains spend ceilings in USD
type BudgetConfig struct {
	MaxDailyUSD         float64 `mapstructure:"max_daily_usd"`
	MaxTotalUSD         float64 `mapstructure:"max_total_usd"`
	PauseOnExceeded     bool    `mapstructure:"pause_on_exceeded"`
	EstimatedJobCostUSD float64 `mapstructure:"estimated_job_cost_usd"` // pre-check estimate; 0 = observed average
	PausePollSeconds    int     `mapstructure:"pause_poll_seconds"`     // sleep while budget paused
}

// CheckpointConfig configures scheduler state persistence
type CheckpointConfig struct {
	Path                   string `mapstructure:"path"`
	Interval               int    `mapstructure:"interval"` // flush every N attempted jobs
	Backups                int    `mapstructure:"backups"`  // rotating .back1..N kept next to the checkpoint
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"`
}

// DatabaseConfig configures the SQLite ledger database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WorkSourceConfig describes where the job list comes from
type WorkSourceConfig struct {
	Kind              string `mapstructure:"kind"` // "file" or "http"
	Path              string `mapstructure:"path"`
	URL               string `mapstructure:"url"`
	CacheDir          string `mapstructure:"cache_dir"`
	PageSize          int    `mapstructure:"page_size"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// OrchestratorConfig describes the external job processor
type OrchestratorConfig struct {
	Kind    string   `mapstructure:"kind"` // "http" or "command"
	URL     string   `mapstructure:"url"`
	APIKey  string   `mapstructure:"api_key"`
	Command []string `mapstructure:"command"`
	// CommandLine is a shell-quoted alternative to Command ("python analyze.py --lang 'nqo'")
	CommandLine string `mapstructure:"command_line"`
}

// TrainingConfig configures the downstream training trigger fired on session end
type TrainingConfig struct {
	TriggerURL     string `mapstructure:"trigger_url"` // empty = log only
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MetricsConfig configures the optional metrics sink
type MetricsConfig struct {
	Sink     string `mapstructure:"sink"` // "none", "log" or "redis"
	Schedule string `mapstructure:"schedule"`
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

// File system constants
const (
	DefaultDirPermissions  = 0750
	DefaultFilePermissions = 0600
)

// DateLayout is the ISO calendar date format used in config and ledger keys
const DateLayout = "2006-01-02"

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday parses a weekday name (full or three-letter, case-insensitive)
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Wrapf(errors.ErrInvalidConfig, "unknown weekday %q", name)
	}
	return d, nil
}

// Location returns the schedule's time zone
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "schedule.timezone %q: %v", s.Timezone, err)
	}
	return loc, nil
}

// Days returns the active weekdays as a set
func (s ScheduleConfig) Days() (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool, len(s.ActiveDays))
	for _, name := range s.ActiveDays {
		d, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days[d] = true
	}
	return days, nil
}

// Dates returns the start and end dates at midnight in loc
func (s ScheduleConfig) Dates(loc *time.Location) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(DateLayout, s.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidConfig, "schedule.start_date %q", s.StartDate)
	}
	end, err = time.ParseInLocation(DateLayout, s.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidConfig, "schedule.end_date %q", s.EndDate)
	}
	return start, end, nil
}

// PollInterval is the sleep used while outside the schedule window
func (s ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// JobTimeout is the bound on a single dispatch
func (t ThroughputConfig) JobTimeout() time.Duration {
	return time.Duration(t.JobTimeoutSeconds) * time.Second
}

// Argv is the command orchestrator's argument vector: Command when set,
// else CommandLine split with shell quoting rules
func (o OrchestratorConfig) Argv() ([]string, error) {
	if len(o.Command) > 0 {
		return o.Command, nil
	}
	if strings.TrimSpace(o.CommandLine) == "" {
		return nil, nil
	}
	argv, err := shellquote.Split(o.CommandLine)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "orchestrator.command_line: %v", err)
	}
	return argv, nil
}

// PausePoll is the sleep used while budget paused
func (b BudgetConfig) PausePoll() time.Duration {
	return time.Duration(b.PausePollSeconds) * time.Second
}
