// Package session brackets a contiguous run of dispatches with a session id
// and fires the downstream training trigger exactly once when it ends.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// IDLayout formats minted session ids
const IDLayout = "session_20060102_150405"

// End reasons
const (
	ReasonExhausted = "work_exhausted"
	ReasonShutdown  = "shutdown"
	ReasonBudget    = "budget_exhausted"
)

// Summary describes a finished session; it is the training trigger payload
type Summary struct {
	SessionID     string    `json:"session_id"`
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Reason        string    `json:"reason"`
	JobsProcessed int       `json:"jobs_processed"`
	JobsFailed    int       `json:"jobs_failed"`
	CostUSD       float64   `json:"cost_usd"`
}

// Recorder keeps session history. Failures are logged, never fatal.
type Recorder interface {
	RecordStart(ctx context.Context, id string, startedAt time.Time) error
	RecordEnd(ctx context.Context, s Summary) error
}

// Manager owns the current session. One Manager per process; it is built by
// the entry point and handed to the scheduler.
type Manager struct {
	mu       sync.Mutex
	id       string
	runID    string
	started  time.Time
	ended    bool
	trigger  Trigger
	recorder Recorder
	now      func() time.Time
	logger   *zap.SugaredLogger
}

// Option configures a Manager
type Option func(*Manager)

// WithRecorder keeps session history in r
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager that fires trigger on End
func NewManager(trigger Trigger, log *zap.SugaredLogger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if trigger == nil {
		trigger = NewLogTrigger(log)
	}
	m := &Manager{
		trigger: trigger,
		now:     time.Now,
		logger:  log,
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start resumes existingID when non-empty, otherwise mints a timestamp id.
// Calling Start again returns the active id.
func (m *Manager) Start(ctx context.Context, existingID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" && !m.ended {
		return m.id
	}

	m.started = m.now()
	m.ended = false
	resumed := existingID != ""
	if resumed {
		m.id = existingID
	} else {
		m.id = m.started.Format(IDLayout)
	}

	if m.recorder != nil {
		if err := m.recorder.RecordStart(ctx, m.id, m.started); err != nil {
			m.logger.Warnw("Failed to record session start",
				logger.FieldSessionID, m.id,
				logger.FieldError, err)
		}
	}

	m.logger.Infow(sym.PulseOpen+" Session started",
		logger.FieldSessionID, m.id,
		logger.FieldRunID, m.runID,
		"resumed", resumed)
	return m.id
}

// ID returns the active session id, empty before Start or after End
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return ""
	}
	return m.id
}

// RunID identifies this process run in logs and trigger payloads
func (m *Manager) RunID() string {
	return m.runID
}

// Ended reports whether End has run for the current session
func (m *Manager) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// End closes the session and fires the training trigger. Only the first call
// for a session has effect; later calls return fired=false. A trigger failure
// is returned but the session is still closed.
func (m *Manager) End(ctx context.Context, s Summary) (fired bool, err error) {
	m.mu.Lock()
	if m.id == "" || m.ended {
		m.mu.Unlock()
		return false, nil
	}
	m.ended = true
	s.SessionID = m.id
	s.RunID = m.runID
	s.StartedAt = m.started
	if s.EndedAt.IsZero() {
		s.EndedAt = m.now()
	}
	m.mu.Unlock()

	if m.recorder != nil {
		if rerr := m.recorder.RecordEnd(ctx, s); rerr != nil {
			m.logger.Warnw("Failed to record session end",
				logger.FieldSessionID, s.SessionID,
				logger.FieldError, rerr)
		}
	}

	m.logger.Infow(sym.PulseClose+" Session ended",
		logger.FieldSessionID, s.SessionID,
		logger.FieldReason, s.Reason,
		logger.FieldProcessed, s.JobsProcessed,
		logger.FieldFailed, s.JobsFailed,
		logger.FieldCostUSD, s.CostUSD)

	if err := m.trigger.Fire(ctx, s); err != nil {
		return true, errors.Wrapf(err, "training trigger for session %s", s.SessionID)
	}
	return true, nil
}
