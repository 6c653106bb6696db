package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

const timeLayout = time.RFC3339Nano

// Record is one row of session history
type Record struct {
	ID            string
	StartedAt     time.Time
	EndedAt       *time.Time
	JobsProcessed int
	CostUSD       float64
	EndReason     string
}

// SQLRecorder keeps session history in the sessions table
type SQLRecorder struct {
	db *sql.DB
}

// NewSQLRecorder creates a recorder on a migrated database
func NewSQLRecorder(conn *sql.DB) *SQLRecorder {
	return &SQLRecorder{db: conn}
}

// RecordStart inserts the session; a resumed session keeps its original row
func (r *SQLRecorder) RecordStart(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, startedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.MarkTransient(errors.Wrapf(err, "insert session %s", id))
	}
	return nil
}

// RecordEnd sets ended_at and totals once; a second end leaves the row alone
func (r *SQLRecorder) RecordEnd(ctx context.Context, s Summary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING`,
		s.SessionID, s.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.MarkTransient(errors.Wrapf(err, "insert session %s", s.SessionID))
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = ?, jobs_processed = ?, cost_usd = ?, end_reason = ?
		WHERE id = ? AND ended_at IS NULL`,
		s.EndedAt.UTC().Format(timeLayout), s.JobsProcessed, s.CostUSD, s.Reason, s.SessionID)
	if err != nil {
		return errors.MarkTransient(errors.Wrapf(err, "end session %s", s.SessionID))
	}
	return nil
}

// List returns the most recent sessions first, at most limit rows
func (r *SQLRecorder) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, jobs_processed, cost_usd, COALESCE(end_reason, '')
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var started string
		var ended sql.NullString
		if err := rows.Scan(&rec.ID, &started, &ended, &rec.JobsProcessed, &rec.CostUSD, &rec.EndReason); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		rec.StartedAt, _ = time.Parse(timeLayout, started)
		if ended.Valid {
			t, _ := time.Parse(timeLayout, ended.String)
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate sessions")
}
