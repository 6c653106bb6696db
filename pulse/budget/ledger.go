package budget

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/util"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// Scope names which ceiling a Decision refers to
type Scope string

const (
	ScopeNone  Scope = ""
	ScopeDaily Scope = "daily"
	ScopeTotal Scope = "total"
)

// Decision is the outcome of a budget check
type Decision struct {
	OK     bool
	Scope  Scope
	Reason string
}

// Err returns nil for an OK decision and a BudgetPaused-kind error otherwise
func (d Decision) Err() error {
	if d.OK {
		return nil
	}
	return errors.MarkBudgetPaused(errors.New(d.Reason))
}

// Ledger keeps per-day and cumulative spend. The in-memory view is
// authoritative for checks. Changed days are written to the Store by Flush
// and stay pending until a flush succeeds.
type Ledger struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time

	mu    sync.Mutex
	days  map[string]*DailyBudget
	total float64
	dirty map[string]bool
}

// NewLedger creates a ledger over store and loads existing records
func NewLedger(store Store, log *zap.SugaredLogger) (*Ledger, error) {
	return NewLedgerWithClock(store, log, time.Now)
}

// NewLedgerWithClock creates a ledger with an injectable clock (for testing)
func NewLedgerWithClock(store Store, log *zap.SugaredLogger, now func() time.Time) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	l := &Ledger{
		store:  store,
		logger: log,
		now:    now,
		days:   make(map[string]*DailyBudget),
		dirty:  make(map[string]bool),
	}

	records, err := store.List()
	if err != nil {
		return nil, errors.Wrap(err, "load budget ledger")
	}
	for i := range records {
		d := records[i]
		l.days[d.Date] = &d
		l.total += d.Spent
	}
	return l, nil
}

// DateKey returns the ledger key (YYYY-MM-DD) of t in t's location
func DateKey(t time.Time) string {
	return t.Format(am.DateLayout)
}

// GetOrCreateDaily returns the record for date, creating it with ceiling on first access.
// A later call with a different ceiling does not alter the record.
func (l *Ledger) GetOrCreateDaily(date string, ceiling float64) (DailyBudget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.getOrCreateLocked(date, ceiling)
	if err != nil {
		return DailyBudget{}, err
	}
	return *d, nil
}

func (l *Ledger) getOrCreateLocked(date string, ceiling float64) (*DailyBudget, error) {
	if d, ok := l.days[date]; ok {
		return d, nil
	}
	now := l.now()
	d := &DailyBudget{
		Date:      date,
		Ceiling:   ceiling,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.days[date] = d
	if err := l.store.Create(d); err != nil {
		l.dirty[date] = true
		return d, errors.Wrapf(err, "create daily budget %s", date)
	}
	return d, nil
}

// RecordSpend adds amount to date and to the cumulative total in memory.
// Nothing is written until Flush, which the scheduler calls only after the
// checkpoint that covers the spend has been saved.
func (l *Ledger) RecordSpend(date string, amount float64, completed bool, dailyCeiling float64) error {
	if amount < 0 {
		return errors.Newf("negative spend %f for %s", amount, date)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.getOrCreateLocked(date, dailyCeiling)
	if err != nil {
		l.logger.Debugw("Daily budget row not created yet", "date", date, logger.FieldError, err)
	}
	d.Spent += amount
	if completed {
		d.JobsCompleted++
	} else {
		d.JobsFailed++
	}
	d.UpdatedAt = l.now()
	l.total += amount
	l.dirty[date] = true
	return nil
}

// Flush writes every day changed since the last successful flush.
// Failed days stay pending; the error is transient.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.dirty) == 0 {
		return nil
	}

	var firstErr error
	for date := range l.dirty {
		d := l.days[date]
		err := l.store.Create(d)
		if err == nil {
			err = l.store.Put(d)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "persist spend for %s", date)
			}
			continue
		}
		delete(l.dirty, date)
	}
	return firstErr
}

// CheckBudget decides whether one more job of estimatedCost may start on date.
// Not ok when spend has reached a ceiling, or when the estimate would carry it
// past one. A ceiling <= 0 counts as exhausted.
func (l *Ledger) CheckBudget(date string, cfg am.BudgetConfig, estimatedCost float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	var daySpent float64
	if d, ok := l.days[date]; ok {
		daySpent = d.Spent
	}

	if dec := check(ScopeDaily, daySpent, cfg.MaxDailyUSD, estimatedCost); !dec.OK {
		return dec
	}
	if dec := check(ScopeTotal, l.total, cfg.MaxTotalUSD, estimatedCost); !dec.OK {
		return dec
	}
	return Decision{OK: true}
}

func check(scope Scope, spent, ceiling, estimate float64) Decision {
	switch {
	case ceiling <= 0:
		return Decision{Scope: scope, Reason: fmt.Sprintf("%s ceiling is $%.2f", scope, ceiling)}
	case spent >= ceiling:
		return Decision{Scope: scope, Reason: fmt.Sprintf("%s budget exhausted: spent $%.2f of $%.2f", scope, spent, ceiling)}
	case spent+estimate > ceiling+util.CostEpsilon:
		return Decision{Scope: scope, Reason: fmt.Sprintf(
			"%s budget would be exceeded: spent $%.2f + estimated $%.2f > $%.2f", scope, spent, estimate, ceiling)}
	}
	return Decision{OK: true}
}

// Restore makes every day the checkpoint records match the checkpoint's
// cost; the checkpoint is the source of truth for resume. Days the
// checkpoint does not record are left alone. Corrected days are written by
// the next Flush.
func (l *Ledger) Restore(dailyCosts map[string]float64, dailyCeiling float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for date, cost := range dailyCosts {
		d, err := l.getOrCreateLocked(date, dailyCeiling)
		if err != nil {
			l.logger.Warnw("Failed to persist restored daily budget",
				"date", date, logger.FieldError, err)
		}
		if util.FloatEqual(d.Spent, cost, util.CostEpsilon) {
			continue
		}
		l.logger.Warnw("Ledger and checkpoint disagree on daily spend, using checkpoint",
			"date", date,
			"ledger_usd", d.Spent,
			"checkpoint_usd", cost)
		l.total += cost - d.Spent
		d.Spent = cost
		d.UpdatedAt = l.now()
		l.dirty[date] = true
	}
}

// Daily returns the record for date, zero-valued if none exists
func (l *Ledger) Daily(date string) DailyBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.days[date]; ok {
		return *d
	}
	return DailyBudget{Date: date}
}

// TotalSpent returns the cumulative spend across all days
func (l *Ledger) TotalSpent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Days returns all records ordered by date
func (l *Ledger) Days() []DailyBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DailyBudget, 0, len(l.days))
	for _, d := range l.days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Pending reports whether some day has unpersisted changes
func (l *Ledger) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.dirty) > 0
}

// Status summarises spend against the current ceilings
type Status struct {
	Date           string  `json:"date"`
	DailySpent     float64 `json:"daily_spent_usd"`
	DailyLimit     float64 `json:"daily_limit_usd"`
	DailyRemaining float64 `json:"daily_remaining_usd"`
	TotalSpent     float64 `json:"total_spent_usd"`
	TotalLimit     float64 `json:"total_limit_usd"`
	TotalRemaining float64 `json:"total_remaining_usd"`
}

// Status returns spend for date against cfg's ceilings
func (l *Ledger) Status(date string, cfg am.BudgetConfig) Status {
	day := l.Daily(date)
	total := l.TotalSpent()
	return Status{
		Date:           date,
		DailySpent:     day.Spent,
		DailyLimit:     cfg.MaxDailyUSD,
		DailyRemaining: remaining(cfg.MaxDailyUSD, day.Spent),
		TotalSpent:     total,
		TotalLimit:     cfg.MaxTotalUSD,
		TotalRemaining: remaining(cfg.MaxTotalUSD, total),
	}
}

func remaining(limit, spent float64) float64 {
	if spent >= limit {
		return 0
	}
	return limit - spent
}

// EstimateJobCost returns the per-job estimate used by the pre-check:
// the configured estimate, else the observed average, else 0.
func EstimateJobCost(cfg am.BudgetConfig, totalCost float64, jobsProcessed int) float64 {
	if cfg.EstimatedJobCostUSD > 0 {
		return cfg.EstimatedJobCostUSD
	}
	if jobsProcessed > 0 {
		return totalCost / float64(jobsProcessed)
	}
	return 0
}
