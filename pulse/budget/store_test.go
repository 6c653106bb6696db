package budget

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/errors"
	testdb "github.com/Diomandeee/learnnko-sub000/internal/testing"
)

var budgetColumns = []string{"date", "ceiling_usd", "spent_usd", "jobs_completed", "jobs_failed", "created_at", "updated_at"}

func TestSQLStore(t *testing.T) {
	store := NewSQLStore(testdb.CreateTestDB(t))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := store.Get("2026-03-02")
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, store.Create(&DailyBudget{Date: "2026-03-02", Ceiling: 5, CreatedAt: now, UpdatedAt: now}))
	// existing record wins
	require.NoError(t, store.Create(&DailyBudget{Date: "2026-03-02", Ceiling: 9, CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, store.Put(&DailyBudget{Date: "2026-03-02", Spent: 2.0, JobsCompleted: 1, JobsFailed: 1, UpdatedAt: now}))

	d, err := store.Get("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 5.0, d.Ceiling, "Put keeps the recorded ceiling")
	assert.InDelta(t, 2.0, d.Spent, 1e-9)
	assert.Equal(t, 1, d.JobsCompleted)
	assert.Equal(t, 1, d.JobsFailed)
	assert.True(t, d.CreatedAt.Equal(now))

	// Put overwrites, so a reconciled day can go down
	require.NoError(t, store.Put(&DailyBudget{Date: "2026-03-02", Spent: 1.5, JobsCompleted: 1, UpdatedAt: now}))
	d, err = store.Get("2026-03-02")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, d.Spent, 1e-9)

	err = store.Put(&DailyBudget{Date: "2026-03-09", Spent: 1, UpdatedAt: now})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLedger_FlushFailureIsTransientAndRetried(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	// Given an empty ledger with spend recorded in memory
	mock.ExpectQuery("SELECT date, ceiling_usd").WillReturnRows(sqlmock.NewRows(budgetColumns))
	mock.ExpectExec("INSERT INTO daily_budgets").WillReturnResult(sqlmock.NewResult(1, 1))

	l, _ := newTestLedger(t, NewSQLStore(conn))
	require.NoError(t, l.RecordSpend("2026-03-02", 2.0, true, 5))
	assert.True(t, l.Pending(), "spend is held until flushed")

	// When the first flush fails
	mock.ExpectExec("INSERT INTO daily_budgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE daily_budgets").WillReturnError(errors.New("disk I/O error"))
	err = l.Flush()

	// Then the error is transient and the in-memory view still moved
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
	assert.InDelta(t, 2.0, l.TotalSpent(), 1e-9)
	assert.True(t, l.Pending())

	// And the next flush writes the whole day
	require.NoError(t, l.RecordSpend("2026-03-02", 1.0, true, 5))
	mock.ExpectExec("INSERT INTO daily_budgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE daily_budgets").
		WithArgs(3.0, 2, 0, sqlmock.AnyArg(), "2026-03-02").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.Flush())
	assert.False(t, l.Pending())
	assert.NoError(t, l.Flush(), "nothing left to write")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLedger_ListFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT date, ceiling_usd").WillReturnError(errors.New("no such table: daily_budgets"))

	_, err = NewLedger(NewSQLStore(conn), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load budget ledger")
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	for _, date := range []string{"2026-03-03", "2026-03-01", "2026-03-02"} {
		require.NoError(t, m.Create(&DailyBudget{Date: date, Ceiling: 5, CreatedAt: now}))
	}
	days, err := m.List()
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.Equal(t, "2026-03-03", days[2].Date)
}
