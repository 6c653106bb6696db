// Package budget tracks spend per calendar day and in total against the
// configured ceilings. Daily records live in the daily_budgets table.
package budget

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/Diomandeee/learnnko-sub000/db"
	"github.com/Diomandeee/learnnko-sub000/errors"
)

// DailyBudget is one calendar day of spend.
// Ceiling is the daily ceiling in force when the day was first seen.
type DailyBudget struct {
	Date          string    `json:"date"`
	Ceiling       float64   `json:"ceiling_usd"`
	Spent         float64   `json:"spent_usd"`
	JobsCompleted int       `json:"jobs_completed"`
	JobsFailed    int       `json:"jobs_failed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Remaining is the unspent part of the day's recorded ceiling, never negative
func (d DailyBudget) Remaining() float64 {
	if d.Spent >= d.Ceiling {
		return 0
	}
	return d.Ceiling - d.Spent
}

// Store persists DailyBudget records
type Store interface {
	// Get returns errors.ErrNotFound when the date has no record
	Get(date string) (*DailyBudget, error)
	// Create inserts a record unless one exists; the existing record wins
	Create(d *DailyBudget) error
	// Put overwrites spent, the job counters and updated_at of an existing record
	Put(d *DailyBudget) error
	// List returns every record ordered by date
	List() ([]DailyBudget, error)
}

// SQLStore is a Store on the daily_budgets table
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store on a migrated ledger database
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

const timeLayout = time.RFC3339Nano

func (s *SQLStore) Get(date string) (*DailyBudget, error) {
	var d DailyBudget
	var created, updated string
	err := s.db.QueryRow(`
		SELECT date, ceiling_usd, spent_usd, jobs_completed, jobs_failed, created_at, updated_at
		FROM daily_budgets WHERE date = ?`, date).
		Scan(&d.Date, &d.Ceiling, &d.Spent, &d.JobsCompleted, &d.JobsFailed, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "daily budget %s", date)
	}
	if err != nil {
		return nil, wrapDB(err, "query daily budget %s", date)
	}
	d.CreatedAt, _ = time.Parse(timeLayout, created)
	d.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &d, nil
}

func (s *SQLStore) Create(d *DailyBudget) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_budgets (date, ceiling_usd, spent_usd, jobs_completed, jobs_failed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO NOTHING`,
		d.Date, d.Ceiling, d.Spent, d.JobsCompleted, d.JobsFailed,
		d.CreatedAt.UTC().Format(timeLayout), d.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return wrapDB(err, "insert daily budget %s", d.Date)
	}
	return nil
}

func (s *SQLStore) Put(d *DailyBudget) error {
	res, err := s.db.Exec(`
		UPDATE daily_budgets
		SET spent_usd = ?, jobs_completed = ?, jobs_failed = ?, updated_at = ?
		WHERE date = ?`,
		d.Spent, d.JobsCompleted, d.JobsFailed, d.UpdatedAt.UTC().Format(timeLayout), d.Date)
	if err != nil {
		return wrapDB(err, "write spend for %s", d.Date)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "daily budget %s", d.Date)
	}
	return nil
}

func (s *SQLStore) List() ([]DailyBudget, error) {
	rows, err := s.db.Query(`
		SELECT date, ceiling_usd, spent_usd, jobs_completed, jobs_failed, created_at, updated_at
		FROM daily_budgets ORDER BY date`)
	if err != nil {
		return nil, wrapDB(err, "list daily budgets")
	}
	defer rows.Close()

	var out []DailyBudget
	for rows.Next() {
		var d DailyBudget
		var created, updated string
		if err := rows.Scan(&d.Date, &d.Ceiling, &d.Spent, &d.JobsCompleted, &d.JobsFailed, &created, &updated); err != nil {
			return nil, wrapDB(err, "scan daily budget")
		}
		d.CreatedAt, _ = time.Parse(timeLayout, created)
		d.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "iterate daily budgets")
	}
	return out, nil
}

// wrapDB marks store failures transient: the next cycle retries them
func wrapDB(err error, format string, args ...interface{}) error {
	if db.IsDatabaseClosed(err) {
		err = errors.Mark(err, db.ErrDatabaseClosed)
	}
	return errors.MarkTransient(errors.Wrapf(err, format, args...))
}

// MemoryStore is an in-process Store for dry runs and tests
type MemoryStore struct {
	mu   sync.Mutex
	days map[string]*DailyBudget
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]*DailyBudget)}
}

func (m *MemoryStore) Get(date string) (*DailyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.days[date]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "daily budget %s", date)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) Create(d *DailyBudget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.days[d.Date]; ok {
		return nil
	}
	cp := *d
	m.days[d.Date] = &cp
	return nil
}

func (m *MemoryStore) Put(d *DailyBudget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.days[d.Date]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "daily budget %s", d.Date)
	}
	cur.Spent = d.Spent
	cur.JobsCompleted = d.JobsCompleted
	cur.JobsFailed = d.JobsFailed
	cur.UpdatedAt = d.UpdatedAt
	return nil
}

func (m *MemoryStore) List() ([]DailyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DailyBudget, 0, len(m.days))
	for _, d := range m.days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
