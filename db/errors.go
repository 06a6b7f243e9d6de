package db

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/libstat/errors"
)

// IsClosed reports whether err comes from a database handle that was closed,
// typically a statfile used after its shared pool was released.
// database/sql does not export its closed error, so the message is matched.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errors.ErrClosed) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}

// IsBusy reports whether err is SQLite lock contention that outlived the busy timeout
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// Wrapf wraps a driver error. Closed handles are marked with errors.ErrClosed
// and lock contention carries a hint.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if IsClosed(err) {
		err = errors.Mark(err, errors.ErrClosed)
	}
	if IsBusy(err) {
		err = errors.WithHintf(err, "another process holds the database lock for more than %dms", SQLiteBusyTimeoutMS)
	}
	return errors.Wrapf(err, format, args...)
}
