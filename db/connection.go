// Package db opens the SQLite databases used by the sqlite3 backend and the
// learn cache, and applies the embedded schema migrations.
package db

import (
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// dsn appends connection pragmas understood by go-sqlite3. They apply to
// every pooled connection, not just the first one.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeoutMS))
	return path + "?" + q.Encode()
}

// Open opens the SQLite database at path and verifies the connection.
// log may be nil.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, Wrapf(err, "connect %s", path)
	}

	if log != nil {
		log.Debugw("Database opened", logger.FieldPath, path)
	}
	return database, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	database, err := Open(path, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(database, log); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return database, nil
}
