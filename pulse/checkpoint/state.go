// Package checkpoint persists scheduler state: which jobs were attempted,
// what they cost, and which session is open. The state file is the sole
// source of truth for resume.
package checkpoint

import (
	"sort"
	"time"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/util"
)

// SchemaVersion is written into every checkpoint
const SchemaVersion = "1.0.0"

// ErrorRecord is one failed dispatch attempt
type ErrorRecord struct {
	JobID     string    `json:"job_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Counters are cumulative totals at one point in time
type Counters struct {
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
	CostUSD   float64 `json:"cost_usd"`
}

// Since returns the work done between c and now. Failures cleared by
// RetryFailed in between do not make the count negative.
func (c Counters) Since(now Counters) Counters {
	d := Counters{
		Processed: now.Processed - c.Processed,
		Failed:    now.Failed - c.Failed,
		CostUSD:   now.CostUSD - c.CostUSD,
	}
	if d.Failed < 0 {
		d.Failed = 0
	}
	if d.CostUSD < 0 {
		d.CostUSD = 0
	}
	return d
}

// State is the persisted scheduler state.
//
// ProcessedJobIDs holds successful dispatches in completion order. Failed
// attempts live in Errors. Both count as attempted; neither is dispatched
// again until RetryFailed is called. Costs of every attempt go into
// DailyCosts so TotalCost always equals their sum.
type State struct {
	SchemaVersion      string             `json:"schema_version"`
	TotalJobsProcessed int                `json:"total_jobs_processed"`
	TotalCost          float64            `json:"total_cost"`
	DailyCosts         map[string]float64 `json:"daily_costs"`
	ProcessedJobIDs    []string           `json:"processed_job_ids"`
	Errors             []ErrorRecord      `json:"errors"`
	CurrentSessionID   string             `json:"current_session_id,omitempty"`
	SessionStart       *Counters          `json:"session_start,omitempty"`
	LastCheckpoint     *time.Time         `json:"last_checkpoint,omitempty"`

	processed map[string]struct{}
	failed    map[string]struct{}
}

// NewState returns the zero state of a fresh installation
func NewState() *State {
	s := &State{
		SchemaVersion:   SchemaVersion,
		DailyCosts:      make(map[string]float64),
		ProcessedJobIDs: []string{},
		Errors:          []ErrorRecord{},
	}
	s.reindex()
	return s
}

func (s *State) reindex() {
	if s.DailyCosts == nil {
		s.DailyCosts = make(map[string]float64)
	}
	if s.ProcessedJobIDs == nil {
		s.ProcessedJobIDs = []string{}
	}
	if s.Errors == nil {
		s.Errors = []ErrorRecord{}
	}
	s.processed = make(map[string]struct{}, len(s.ProcessedJobIDs))
	for _, id := range s.ProcessedJobIDs {
		s.processed[id] = struct{}{}
	}
	s.failed = make(map[string]struct{}, len(s.Errors))
	for _, e := range s.Errors {
		s.failed[e.JobID] = struct{}{}
	}
}

// IsProcessed reports whether id completed successfully
func (s *State) IsProcessed(id string) bool {
	_, ok := s.processed[id]
	return ok
}

// IsAttempted reports whether id was dispatched, successfully or not
func (s *State) IsAttempted(id string) bool {
	if _, ok := s.processed[id]; ok {
		return true
	}
	_, ok := s.failed[id]
	return ok
}

// MarkProcessed records a successful dispatch. It is a no-op returning
// false when id is already processed, so cost is never counted twice.
func (s *State) MarkProcessed(id, date string, cost float64) bool {
	if s.IsProcessed(id) {
		return false
	}
	s.processed[id] = struct{}{}
	s.ProcessedJobIDs = append(s.ProcessedJobIDs, id)
	s.TotalJobsProcessed++
	s.addCost(date, cost)
	return true
}

// RecordError records a failed attempt and its cost. A job already failed
// keeps a single error entry, the latest one.
func (s *State) RecordError(id, date string, cost float64, msg string, at time.Time) {
	rec := ErrorRecord{JobID: id, Error: msg, Timestamp: at}
	if _, ok := s.failed[id]; ok {
		for i := range s.Errors {
			if s.Errors[i].JobID == id {
				s.Errors[i] = rec
			}
		}
	} else {
		s.failed[id] = struct{}{}
		s.Errors = append(s.Errors, rec)
	}
	s.addCost(date, cost)
}

func (s *State) addCost(date string, cost float64) {
	if cost <= 0 {
		return
	}
	s.DailyCosts[date] += cost
	s.TotalCost += cost
}

// RetryFailed clears Errors and returns the ids that become eligible again
func (s *State) RetryFailed() []string {
	ids := make([]string, 0, len(s.Errors))
	for _, e := range s.Errors {
		if !s.IsProcessed(e.JobID) {
			ids = append(ids, e.JobID)
		}
	}
	s.Errors = []ErrorRecord{}
	s.failed = make(map[string]struct{})
	return ids
}

// FailedCount is the number of distinct failed jobs
func (s *State) FailedCount() int {
	return len(s.failed)
}

// AttemptedCount is the number of distinct attempted jobs
func (s *State) AttemptedCount() int {
	n := len(s.processed)
	for id := range s.failed {
		if _, ok := s.processed[id]; !ok {
			n++
		}
	}
	return n
}

// Counters returns the current cumulative totals
func (s *State) Counters() Counters {
	return Counters{Processed: s.TotalJobsProcessed, Failed: len(s.failed), CostUSD: s.TotalCost}
}

// CostOn returns the recorded cost for date
func (s *State) CostOn(date string) float64 {
	return s.DailyCosts[date]
}

// Dates returns the dates with recorded cost, sorted
func (s *State) Dates() []string {
	dates := make([]string, 0, len(s.DailyCosts))
	for d := range s.DailyCosts {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Validate checks the internal invariants of a loaded state
func (s *State) Validate() error {
	var sum float64
	for date, c := range s.DailyCosts {
		if c < 0 {
			return errors.Wrapf(errors.ErrCorruptState, "negative cost %f on %s", c, date)
		}
		sum += c
	}
	if !util.FloatEqual(sum, s.TotalCost, 1e-6) {
		return errors.Wrapf(errors.ErrCorruptState, "total_cost %.6f != sum of daily_costs %.6f", s.TotalCost, sum)
	}
	seen := make(map[string]struct{}, len(s.ProcessedJobIDs))
	for _, id := range s.ProcessedJobIDs {
		if _, dup := seen[id]; dup {
			return errors.Wrapf(errors.ErrCorruptState, "job %s appears twice in processed_job_ids", id)
		}
		seen[id] = struct{}{}
	}
	if s.TotalJobsProcessed != len(s.ProcessedJobIDs) {
		return errors.Wrapf(errors.ErrCorruptState, "total_jobs_processed %d != %d processed ids",
			s.TotalJobsProcessed, len(s.ProcessedJobIDs))
	}
	return nil
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	c := &State{
		SchemaVersion:      s.SchemaVersion,
		TotalJobsProcessed: s.TotalJobsProcessed,
		TotalCost:          s.TotalCost,
		DailyCosts:         make(map[string]float64, len(s.DailyCosts)),
		ProcessedJobIDs:    append([]string{}, s.ProcessedJobIDs...),
		Errors:             append([]ErrorRecord{}, s.Errors...),
		CurrentSessionID:   s.CurrentSessionID,
	}
	for k, v := range s.DailyCosts {
		c.DailyCosts[k] = v
	}
	if s.SessionStart != nil {
		start := *s.SessionStart
		c.SessionStart = &start
	}
	if s.LastCheckpoint != nil {
		t := *s.LastCheckpoint
		c.LastCheckpoint = &t
	}
	c.reindex()
	return c
}
