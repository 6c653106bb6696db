// Package testing holds shared test helpers.
package testing

import (
	"database/sql"
	"testing"

	"github.com/Diomandeee/learnnko-sub000/db"
)

// CreateTestDB creates an in-memory SQLite ledger database with all
// migrations applied. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}
