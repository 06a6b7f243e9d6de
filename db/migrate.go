package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded schema step; version is the numeric file prefix
type migration struct {
	version string
	file    string
	body    string
}

// loadMigrations returns the embedded migrations in version order
func loadMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		body, err := migrations.ReadFile(path.Join(migrationsDir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		version, _, _ := strings.Cut(name, "_")
		out = append(out, migration{version: version, file: name, body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].file < out[j].file })
	return out, nil
}

// appliedVersions reads schema_migrations. ok is false when the table does
// not exist yet, which is only valid before the first migration ran.
func appliedVersions(database *sql.DB) (applied map[string]bool, ok bool, err error) {
	rows, qerr := database.Query("SELECT version FROM schema_migrations")
	if qerr != nil {
		return map[string]bool{}, false, nil
	}
	defer rows.Close()

	applied = make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, true, errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = true
	}
	return applied, true, errors.Wrap(rows.Err(), "read schema_migrations")
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. log may be nil.
func Migrate(database *sql.DB, log *zap.SugaredLogger) error {
	steps, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, haveTable, err := appliedVersions(database)
	if err != nil {
		return err
	}
	// 000 creates schema_migrations and records itself
	if !haveTable && len(steps) > 0 && steps[0].version != "000" {
		return errors.Newf("schema_migrations table missing, first migration is %s", steps[0].file)
	}

	ran := 0
	for _, m := range steps {
		if applied[m.version] {
			continue
		}
		if err := apply(database, m); err != nil {
			return err
		}
		ran++
		if log != nil {
			log.Debugw("Applied migration", logger.FieldFile, m.file)
		}
	}

	if log != nil && ran > 0 {
		log.Infow("Schema migrated", logger.FieldCount, ran)
	}
	return nil
}

func apply(database *sql.DB, m migration) error {
	tx, err := database.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", m.file)
	}
	if _, err := tx.Exec(m.body); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.file)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.file)
	}
	return nil
}
