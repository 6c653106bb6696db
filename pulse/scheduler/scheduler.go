// Package scheduler runs the continuous dispatch loop: it waits for the
// schedule window, checks the budget, dispatches the next unattempted job,
// records the result durably and paces itself until the work runs out or
// it is told to stop.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse"
	"github.com/Diomandeee/learnnko-sub000/pulse/budget"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
	"github.com/Diomandeee/learnnko-sub000/pulse/metrics"
	"github.com/Diomandeee/learnnko-sub000/pulse/orchestrator"
	"github.com/Diomandeee/learnnko-sub000/pulse/schedule"
	"github.com/Diomandeee/learnnko-sub000/pulse/session"
)

// drainTimeout bounds session close and the final checkpoint on shutdown
const drainTimeout = 30 * time.Second

// Checkpointer persists scheduler state
type Checkpointer interface {
	Save(state *checkpoint.State) error
}

// Deps are the collaborators the entry point builds for a Scheduler
type Deps struct {
	Config       am.ConfigSource
	Jobs         []jobs.Job
	Ledger       *budget.Ledger
	Checkpoint   Checkpointer
	State        *checkpoint.State
	Sessions     *session.Manager
	Orchestrator orchestrator.Orchestrator
	Progress     pulse.ProgressEmitter // optional
	Clock        Clock                 // optional, defaults to RealClock
	Logger       *zap.SugaredLogger    // optional
}

// snapshot is one immutable config generation with its compiled window
type snapshot struct {
	cfg    *am.Config
	window *schedule.Window
}

// Scheduler owns the loop and all mutable run state. Build one with New and
// call Run once.
type Scheduler struct {
	source     am.ConfigSource
	current    atomic.Pointer[snapshot]
	jobs       []jobs.Job
	ledger     *budget.Ledger
	store      Checkpointer
	sessions   *session.Manager
	orch       orchestrator.Orchestrator
	progress   pulse.ProgressEmitter
	clock      Clock
	logger     pulseLogger
	throughput *metrics.Throughput

	// mu guards everything below; Status and Snapshot read from other goroutines
	mu           sync.Mutex
	state        *checkpoint.State
	loopState    LoopState
	pauseReason  string
	unsaved      int
	saveFailures int
	degraded     bool
	lastInterval time.Duration
}

// New validates deps and takes the first config snapshot. The ledger is
// reconciled with the checkpoint's per-day costs.
func New(deps Deps) (*Scheduler, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("scheduler: config source is required")
	case deps.Ledger == nil:
		return nil, errors.New("scheduler: ledger is required")
	case deps.Checkpoint == nil:
		return nil, errors.New("scheduler: checkpoint store is required")
	case deps.Sessions == nil:
		return nil, errors.New("scheduler: session manager is required")
	case deps.Orchestrator == nil:
		return nil, errors.New("scheduler: orchestrator is required")
	}
	if deps.State == nil {
		deps.State = checkpoint.NewState()
	}
	if deps.Progress == nil {
		deps.Progress = pulse.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	s := &Scheduler{
		source:     deps.Config,
		jobs:       deps.Jobs,
		ledger:     deps.Ledger,
		store:      deps.Checkpoint,
		sessions:   deps.Sessions,
		orch:       deps.Orchestrator,
		progress:   deps.Progress,
		clock:      deps.Clock,
		logger:     pulseLogger{deps.Logger},
		throughput: metrics.NewThroughput(deps.Clock.Now()),
		state:      deps.State,
		loopState:  StateIdle,
	}

	cfg, _, err := deps.Config.Poll()
	if cfg == nil {
		if err == nil {
			err = errors.New("config source returned no snapshot")
		}
		return nil, errors.MarkFatal(errors.Wrap(err, "initial config"))
	}
	if err := s.install(cfg); err != nil {
		return nil, errors.MarkFatal(err)
	}

	s.ledger.Restore(s.state.DailyCosts, cfg.Budget.MaxDailyUSD)
	return s, nil
}

// install compiles and swaps in a config snapshot
func (s *Scheduler) install(cfg *am.Config) error {
	w, err := schedule.NewWindow(cfg.Schedule)
	if err != nil {
		return errors.Wrap(err, "compile schedule window")
	}
	s.current.Store(&snapshot{cfg: cfg, window: w})
	return nil
}

// Config returns the active snapshot
func (s *Scheduler) Config() *am.Config {
	return s.current.Load().cfg
}

// LoopState returns the current loop state
func (s *Scheduler) LoopState() LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopState
}

// Degraded reports whether checkpoint saves are failing repeatedly
func (s *Scheduler) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// LastInterval returns the most recent pacing interval
func (s *Scheduler) LastInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInterval
}

func (s *Scheduler) setState(st LoopState, message string) {
	s.mu.Lock()
	s.loopState = st
	s.mu.Unlock()
	if message != "" {
		s.progress.EmitStage(string(st), message)
	}
}

// Run drives the loop until the work is exhausted or ctx is cancelled.
// It returns nil on a clean finish; a non-nil error means the final
// checkpoint could not be written.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	existing := s.state.CurrentSessionID
	s.mu.Unlock()

	sessionID := s.sessions.Start(ctx, existing)
	ctx = logger.WithSessionID(logger.WithComponent(ctx, "pulse.scheduler"), sessionID)
	s.mu.Lock()
	s.state.CurrentSessionID = sessionID
	if sessionID != existing || s.state.SessionStart == nil {
		start := s.state.Counters()
		s.state.SessionStart = &start
	}
	s.mu.Unlock()
	s.saveNow()

	cfg := s.Config()
	s.logger.Starting("Scheduler started",
		logger.FieldSessionID, sessionID,
		logger.FieldPending, s.pendingCount(),
		logger.FieldInterval, schedule.Interval(cfg.Throughput).String(),
		"config", cfg.String())

	for {
		if ctx.Err() != nil {
			return s.drain(ctx, session.ReasonShutdown)
		}

		done, reason := s.cycle(ctx)
		if done {
			return s.drain(ctx, reason)
		}
	}
}

// cycle runs one pass LOADING_CONFIG .. SLEEPING. done is true when the
// loop must stop; reason names why.
func (s *Scheduler) cycle(ctx context.Context) (done bool, reason string) {
	s.setState(StateLoadingConfig, "")
	s.reload()
	s.retryPersistence()

	snap := s.current.Load()
	cfg, window := snap.cfg, snap.window
	now := s.clock.Now()

	// With no work left neither a closed window nor a budget pause would ever end
	job, ok := s.nextJob()
	if !ok {
		s.logger.Pulse("No unattempted jobs left")
		return true, session.ReasonExhausted
	}

	if !window.Contains(now) {
		s.setState(StateWaitingSchedule, "Outside schedule window")
		return s.sleep(ctx, s.untilOpening(window, now, cfg.Schedule.PollInterval())), session.ReasonShutdown
	}

	s.setState(StateSelectingJob, "")

	date := budget.DateKey(now.In(window.Location()))
	if _, err := s.ledger.GetOrCreateDaily(date, cfg.Budget.MaxDailyUSD); err != nil {
		s.logger.Warnw("Failed to persist daily budget", "date", date, logger.FieldError, err)
	}

	s.mu.Lock()
	estimate := budget.EstimateJobCost(cfg.Budget, s.state.TotalCost, s.state.AttemptedCount())
	s.mu.Unlock()

	if dec := s.ledger.CheckBudget(date, cfg.Budget, estimate); !dec.OK {
		s.mu.Lock()
		s.pauseReason = dec.Reason
		s.mu.Unlock()
		if !cfg.Budget.PauseOnExceeded {
			s.logger.Pulse("Budget exhausted, stopping", logger.FieldReason, dec.Reason)
			return true, session.ReasonBudget
		}
		s.setState(StateBudgetPaused, "Budget paused: "+dec.Reason)
		err := dec.Err()
		s.logger.Debugw("Budget check failed",
			logger.FieldError, err,
			logger.FieldErrorKind, errors.KindOf(err).String(),
			logger.FieldEstimateUSD, estimate,
			logger.FieldDailyLimit, cfg.Budget.MaxDailyUSD,
			logger.FieldTotalLimit, cfg.Budget.MaxTotalUSD)
		return s.sleep(ctx, cfg.Budget.PausePoll()), session.ReasonShutdown
	}
	s.mu.Lock()
	s.pauseReason = ""
	s.mu.Unlock()

	// No dispatch outside the window, even when it closed during the checks above
	if at := s.clock.Now(); !window.Contains(at) {
		s.setState(StateWaitingSchedule, "Schedule window closed before dispatch")
		return s.sleep(ctx, s.untilOpening(window, at, cfg.Schedule.PollInterval())), session.ReasonShutdown
	}

	s.setState(StateDispatching, "")
	res, err := s.dispatch(ctx, cfg, job)

	s.setState(StateRecording, "")
	s.record(cfg, date, job, res, err)

	if ctx.Err() != nil {
		return true, session.ReasonShutdown
	}

	s.setState(StateSleeping, "")
	interval := schedule.Interval(cfg.Throughput)
	s.mu.Lock()
	s.lastInterval = interval
	s.mu.Unlock()
	return s.sleep(ctx, interval), session.ReasonShutdown
}

// sleep reports true when ctx ended the sleep
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	return s.clock.Sleep(ctx, d) != nil
}

// untilOpening is the wait before re-checking the window: the next opening
// when it is sooner than poll, otherwise poll
func (s *Scheduler) untilOpening(w *schedule.Window, now time.Time, poll time.Duration) time.Duration {
	next, ok := w.NextOpening(now)
	if !ok {
		s.logger.Warnw("Schedule window has ended; waiting for a config change",
			logger.FieldInterval, poll.String())
		return poll
	}
	if wait := next.Sub(now); wait > 0 && wait < poll {
		return wait
	}
	return poll
}

// reload polls the config source and swaps the snapshot on change
func (s *Scheduler) reload() {
	cfg, changed, err := s.source.Poll()
	if err != nil {
		s.logger.Warnw("Config reload failed, keeping previous config", logger.FieldError, err)
	}
	if !changed || cfg == nil {
		return
	}
	prev := s.Config()
	if err := s.install(cfg); err != nil {
		s.logger.Warnw("Config rejected, keeping previous config", logger.FieldError, err)
		return
	}
	s.logger.Pulse("Config reloaded",
		"config", cfg.String(),
		"previous_interval", schedule.Interval(prev.Throughput).String(),
		logger.FieldInterval, schedule.Interval(cfg.Throughput).String())
}

// nextJob returns the earliest unattempted job in fetch order
func (s *Scheduler) nextJob() (jobs.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if !s.state.IsAttempted(j.ID) {
			return j, true
		}
	}
	return jobs.Job{}, false
}

func (s *Scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if !s.state.IsAttempted(j.ID) {
			n++
		}
	}
	return n
}

// dispatch runs one job. Shutdown does not interrupt it; the per-job
// timeout does.
func (s *Scheduler) dispatch(ctx context.Context, cfg *am.Config, job jobs.Job) (orchestrator.Result, error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Throughput.JobTimeout())
	defer cancel()
	dctx = logger.WithJobID(dctx, job.ID)

	s.logger.Pulse("Dispatching job",
		logger.FieldJobID, job.ID,
		"title", job.Title)

	start := s.clock.Now()
	res, err := s.orch.Process(dctx, job)
	if err == nil && dctx.Err() == context.DeadlineExceeded {
		err = errors.Mark(errors.Newf("dispatch %s exceeded %s", job.ID, cfg.Throughput.JobTimeout()), errors.ErrTimeout)
	}
	if res.CostUSD < 0 {
		res.CostUSD = 0
	}
	logger.FromContext(dctx, s.logger.SugaredLogger).Debugw("Dispatch finished",
		"status", res.Status,
		logger.FieldDurationMS, s.clock.Now().Sub(start).Milliseconds())
	return res, err
}

// record books the attempt: the job into the checkpoint state, spend into
// the ledger, then a checkpoint save every checkpoint.interval attempts.
// Ledger spend reaches the database only after the save that covers it.
func (s *Scheduler) record(cfg *am.Config, date string, job jobs.Job, res orchestrator.Result, err error) {
	success := err == nil && res.Succeeded()
	now := s.clock.Now()

	s.mu.Lock()
	if success {
		s.state.MarkProcessed(job.ID, date, res.CostUSD)
	} else {
		s.state.RecordError(job.ID, date, res.CostUSD, orchestrator.Describe(res, err), now)
	}
	s.unsaved++
	processed := s.state.TotalJobsProcessed
	totalCost := s.state.TotalCost
	s.mu.Unlock()

	if lerr := s.ledger.RecordSpend(date, res.CostUSD, success, cfg.Budget.MaxDailyUSD); lerr != nil {
		s.logger.Warnw("Failed to record spend",
			logger.FieldJobID, job.ID,
			logger.FieldCostUSD, res.CostUSD,
			logger.FieldError, lerr)
	}
	s.throughput.Observe(success)

	if success {
		s.progress.EmitProgress(processed, map[string]interface{}{
			logger.FieldJobID:      job.ID,
			logger.FieldCostUSD:    res.CostUSD,
			logger.FieldTotalSpend: totalCost,
			logger.FieldDailySpend: s.ledger.Daily(date).Spent,
		})
	} else {
		s.progress.EmitError(string(StateRecording),
			errors.Wrapf(errorOrStatus(res, err), "job %s (%s)", job.ID, orchestrator.Classify(res, err)))
	}

	s.mu.Lock()
	due := s.unsaved >= cfg.Checkpoint.Interval
	s.mu.Unlock()
	if due {
		s.saveNow()
	}
}

func errorOrStatus(res orchestrator.Result, err error) error {
	if err != nil {
		return err
	}
	return errors.New(orchestrator.Describe(res, nil))
}

// saveNow writes the checkpoint and tracks consecutive failures
func (s *Scheduler) saveNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Save(s.state)
	if err == nil {
		if s.degraded {
			s.logger.Pulse("Checkpoint saves recovered, leaving degraded mode")
		}
		s.unsaved = 0
		s.saveFailures = 0
		s.degraded = false
		if ferr := s.ledger.Flush(); ferr != nil {
			s.logger.Debugw("Ledger flush failed, will retry", logger.FieldError, ferr)
		}
		return true
	}

	s.saveFailures++
	limit := s.Config().Checkpoint.MaxConsecutiveFailures
	if limit > 0 && s.saveFailures >= limit {
		s.degraded = true
	}
	s.logger.Warnw("Checkpoint save failed, will retry",
		logger.FieldError, err,
		logger.FieldErrorKind, errors.KindOf(err).String(),
		"consecutive_failures", s.saveFailures)
	return false
}

// retryPersistence retries a pending checkpoint and ledger writes at the
// top of every cycle and repeats the degraded warning while it lasts.
// Ledger days are only flushed once the checkpoint has no unsaved attempts.
func (s *Scheduler) retryPersistence() {
	s.mu.Lock()
	pending := s.unsaved > 0 && s.saveFailures > 0
	covered := s.unsaved == 0
	s.mu.Unlock()
	if pending {
		s.saveNow()
	} else if covered && s.ledger.Pending() {
		if err := s.ledger.Flush(); err != nil {
			s.logger.Debugw("Ledger flush failed", logger.FieldError, err)
		}
	}

	s.mu.Lock()
	degraded, failures := s.degraded, s.saveFailures
	s.mu.Unlock()
	if degraded {
		s.logger.Warnw("Running in degraded mode: checkpoint saves are failing",
			"consecutive_failures", failures)
	}
}

// drain finishes a run: final checkpoint, session close, TERMINATED.
// The in-flight dispatch has already returned by the time drain runs.
func (s *Scheduler) drain(ctx context.Context, reason string) error {
	s.setState(StateDraining, "Draining")
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	s.mu.Lock()
	var start checkpoint.Counters
	if s.state.SessionStart != nil {
		start = *s.state.SessionStart
	}
	done := start.Since(s.state.Counters())
	summary := session.Summary{
		Reason:        reason,
		JobsProcessed: done.Processed,
		JobsFailed:    done.Failed,
		CostUSD:       done.CostUSD,
	}
	s.mu.Unlock()

	if _, err := s.sessions.End(dctx, summary); err != nil {
		s.logger.Warnw("Training trigger failed", logger.FieldError, err)
	}

	s.mu.Lock()
	s.state.CurrentSessionID = ""
	s.state.SessionStart = nil
	s.mu.Unlock()

	var finalErr error
	if !s.saveNow() {
		finalErr = errors.New("final checkpoint could not be written")
	} else if s.ledger.Pending() {
		s.logger.Warnw("Ledger writes still pending on shutdown; the checkpoint restores them on next start")
	}

	s.mu.Lock()
	complete := map[string]interface{}{
		logger.FieldReason:     reason,
		logger.FieldProcessed:  s.state.TotalJobsProcessed,
		logger.FieldFailed:     s.state.FailedCount(),
		logger.FieldTotalSpend: s.state.TotalCost,
	}
	s.mu.Unlock()
	s.progress.EmitComplete(complete)

	s.setState(StateTerminated, "")
	s.logger.Closing("Scheduler stopped", logger.FieldReason, reason)
	return finalErr
}
