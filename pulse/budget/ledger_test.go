package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	testdb "github.com/Diomandeee/learnnko-sub000/internal/testing"
)

type mockClock struct {
	t time.Time
}

func (m *mockClock) Now() time.Time { return m.t }

func budgetCfg(daily, total float64) am.BudgetConfig {
	return am.BudgetConfig{MaxDailyUSD: daily, MaxTotalUSD: total, PauseOnExceeded: true, PausePollSeconds: 60}
}

func newTestLedger(t *testing.T, store Store) (*Ledger, *mockClock) {
	t.Helper()
	clock := &mockClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	l, err := NewLedgerWithClock(store, nil, clock.Now)
	require.NoError(t, err)
	return l, clock
}

func TestGetOrCreateDaily_Idempotent(t *testing.T) {
	l, _ := newTestLedger(t, NewMemoryStore())

	first, err := l.GetOrCreateDaily("2026-03-02", 5.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, first.Ceiling)
	assert.Zero(t, first.Spent)

	// A later ceiling change does not rewrite the day
	again, err := l.GetOrCreateDaily("2026-03-02", 9.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, again.Ceiling)
}

func TestRecordSpend(t *testing.T) {
	l, _ := newTestLedger(t, NewMemoryStore())

	require.NoError(t, l.RecordSpend("2026-03-01", 1.25, true, 5))
	require.NoError(t, l.RecordSpend("2026-03-02", 2.00, true, 5))
	require.NoError(t, l.RecordSpend("2026-03-02", 0.50, false, 5))

	day := l.Daily("2026-03-02")
	assert.InDelta(t, 2.50, day.Spent, 1e-9)
	assert.Equal(t, 1, day.JobsCompleted)
	assert.Equal(t, 1, day.JobsFailed)
	assert.InDelta(t, 3.75, l.TotalSpent(), 1e-9)

	assert.Error(t, l.RecordSpend("2026-03-02", -1, true, 5))
}

func TestLedger_ReloadsFromStore(t *testing.T) {
	conn := testdb.CreateTestDB(t)
	store := NewSQLStore(conn)

	l, _ := newTestLedger(t, store)
	require.NoError(t, l.RecordSpend("2026-03-01", 1.0, true, 5))
	require.NoError(t, l.RecordSpend("2026-03-02", 2.0, true, 5))
	require.NoError(t, l.RecordSpend("2026-03-02", 0.5, false, 5))

	// A second ledger over the same database sees the same spend
	reopened, _ := newTestLedger(t, store)
	assert.InDelta(t, 3.5, reopened.TotalSpent(), 1e-9)
	day := reopened.Daily("2026-03-02")
	assert.InDelta(t, 2.5, day.Spent, 1e-9)
	assert.Equal(t, 1, day.JobsCompleted)
	assert.Equal(t, 1, day.JobsFailed)
	assert.Len(t, reopened.Days(), 2)
}

func TestCheckBudget(t *testing.T) {
	tests := []struct {
		name      string
		spentDay  float64
		cfg       am.BudgetConfig
		estimate  float64
		wantOK    bool
		wantScope Scope
	}{
		{name: "fresh day", cfg: budgetCfg(5, 100), estimate: 2, wantOK: true},
		{name: "daily reached", spentDay: 5, cfg: budgetCfg(5, 100), wantScope: ScopeDaily},
		{name: "daily over", spentDay: 5.5, cfg: budgetCfg(5, 100), wantScope: ScopeDaily},
		{name: "estimate would exceed daily", spentDay: 4, cfg: budgetCfg(5, 100), estimate: 2, wantScope: ScopeDaily},
		{name: "estimate lands exactly on ceiling", spentDay: 3, cfg: budgetCfg(5, 100), estimate: 2, wantOK: true},
		{name: "zero daily ceiling", cfg: budgetCfg(0, 100), wantScope: ScopeDaily},
		{name: "total reached", spentDay: 3, cfg: budgetCfg(50, 3), wantScope: ScopeTotal},
		{name: "zero total ceiling", cfg: budgetCfg(5, 0), wantScope: ScopeTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t, NewMemoryStore())
			if tt.spentDay > 0 {
				require.NoError(t, l.RecordSpend("2026-03-02", tt.spentDay, true, tt.cfg.MaxDailyUSD))
			}

			dec := l.CheckBudget("2026-03-02", tt.cfg, tt.estimate)
			assert.Equal(t, tt.wantOK, dec.OK, dec.Reason)
			assert.Equal(t, tt.wantScope, dec.Scope)
			if !tt.wantOK {
				assert.Equal(t, errors.KindBudgetPaused, errors.KindOf(dec.Err()))
			} else {
				assert.NoError(t, dec.Err())
			}
		})
	}
}

func TestCheckBudget_DayRollover(t *testing.T) {
	// Given today's ceiling is spent
	l, _ := newTestLedger(t, NewMemoryStore())
	cfg := budgetCfg(5, 100)
	require.NoError(t, l.RecordSpend("2026-03-02", 5, true, 5))
	assert.False(t, l.CheckBudget("2026-03-02", cfg, 0).OK)

	// Then the next day starts fresh
	assert.True(t, l.CheckBudget("2026-03-03", cfg, 2).OK)

	// And loosening the ceiling clears today's pause
	assert.True(t, l.CheckBudget("2026-03-02", budgetCfg(10, 100), 2).OK)
}

func TestScenarioA_TwoJobsThenPause(t *testing.T) {
	// Given a $5.00 daily ceiling and jobs that cost $2.00
	l, _ := newTestLedger(t, NewMemoryStore())
	cfg := budgetCfg(5, 100)
	date := "2026-03-02"

	processed := 0
	for i := 0; i < 5; i++ {
		estimate := EstimateJobCost(cfg, l.TotalSpent(), processed)
		if !l.CheckBudget(date, cfg, estimate).OK {
			break
		}
		require.NoError(t, l.RecordSpend(date, 2.0, true, cfg.MaxDailyUSD))
		processed++
	}

	// Then exactly two jobs ran and $4.00 was spent
	assert.Equal(t, 2, processed)
	assert.InDelta(t, 4.0, l.TotalSpent(), 1e-9)
}

func TestRestore_CheckpointWins(t *testing.T) {
	// Given a ledger that disagrees with the checkpoint in both directions
	l, _ := newTestLedger(t, NewMemoryStore())
	require.NoError(t, l.RecordSpend("2026-03-01", 2.0, true, 5))
	require.NoError(t, l.RecordSpend("2026-03-02", 3.0, true, 5))
	require.NoError(t, l.RecordSpend("2026-02-27", 1.0, true, 5))

	// When restoring checkpoint costs
	l.Restore(map[string]float64{
		"2026-03-01": 4.0,
		"2026-03-02": 2.5,
	}, 5)

	// Then each recorded day takes the checkpoint value and other days are kept
	assert.InDelta(t, 4.0, l.Daily("2026-03-01").Spent, 1e-9)
	assert.InDelta(t, 2.5, l.Daily("2026-03-02").Spent, 1e-9)
	assert.InDelta(t, 1.0, l.Daily("2026-02-27").Spent, 1e-9)
	assert.InDelta(t, 7.5, l.TotalSpent(), 1e-9)

	// And restoring the same costs again changes nothing
	l.Restore(map[string]float64{"2026-03-01": 4.0, "2026-03-02": 2.5}, 5)
	assert.InDelta(t, 7.5, l.TotalSpent(), 1e-9)
}

func TestRestore_WrittenOnFlush(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newTestLedger(t, store)

	l.Restore(map[string]float64{"2026-03-01": 4.0}, 5)
	require.True(t, l.Pending())
	require.NoError(t, l.Flush())

	d, err := store.Get("2026-03-01")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d.Spent, 1e-9)
	assert.False(t, l.Pending())
}

func TestStatus(t *testing.T) {
	l, _ := newTestLedger(t, NewMemoryStore())
	require.NoError(t, l.RecordSpend("2026-03-02", 6.0, true, 5))

	s := l.Status("2026-03-02", budgetCfg(5, 10))
	assert.Equal(t, 6.0, s.DailySpent)
	assert.Zero(t, s.DailyRemaining, "remaining never negative")
	assert.InDelta(t, 4.0, s.TotalRemaining, 1e-9)
}

func TestEstimateJobCost(t *testing.T) {
	assert.Equal(t, 1.5, EstimateJobCost(am.BudgetConfig{EstimatedJobCostUSD: 1.5}, 10, 2))
	assert.Equal(t, 5.0, EstimateJobCost(am.BudgetConfig{}, 10, 2))
	assert.Zero(t, EstimateJobCost(am.BudgetConfig{}, 0, 0))
}
