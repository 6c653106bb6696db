package db

import (
	"strings"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// ErrDatabaseClosed is returned when the ledger is used after shutdown closed it
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is gone.
// database/sql returns its own unwrapped error, hence the message fallback.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
