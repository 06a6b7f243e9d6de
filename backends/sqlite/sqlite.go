// Package sqlite implements the "sqlite3" storage backend. Statfiles that
// name the same database path share one connection pool; rows are keyed
// by statfile symbol.
package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/db"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "sqlite3"

// Backend is the sqlite3 provider
type Backend struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	pool map[string]*sharedDB
}

type sharedDB struct {
	db   *sql.DB
	refs int
}

// statfileState is the per-statfile state
type statfileState struct {
	path   string
	symbol string
	db     *sql.DB
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Backend {
	return &Backend{
		logger: logger.OrComponent(log, "backend.sqlite3"),
		pool:   make(map[string]*sharedDB),
	}
}

// Name returns the provider name
func (b *Backend) Name() string { return Name }

// Init opens (or reuses) the database named by the statfile path, falling
// back to the dbname option of the statfile or classifier.
func (b *Backend) Init(sc *stat.Context, cfg *config.Config, st *stat.Statfile) (any, error) {
	path := st.Config().Path
	if path == "" {
		if v, ok := config.Lookup("dbname", st.Config().Options, st.Classifier().Config().Options); ok {
			path = cast.ToString(v)
		}
	}
	if path == "" {
		return nil, errors.NewInvalidConfigError("statfile %s has neither path nor dbname", st.Symbol())
	}

	database, err := b.acquire(path)
	if err != nil {
		return nil, err
	}
	return &statfileState{path: path, symbol: st.Symbol(), db: database}, nil
}

func (b *Backend) acquire(path string) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.pool[path]; ok {
		s.refs++
		return s.db, nil
	}
	database, err := db.OpenWithMigrations(path, b.logger)
	if err != nil {
		return nil, err
	}
	b.pool[path] = &sharedDB{db: database, refs: 1}
	return database, nil
}

func (b *Backend) release(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.pool[path]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(b.pool, path)
	if err := s.db.Close(); err != nil {
		b.logger.Warnw("Cannot close database", logger.FieldPath, path, logger.FieldError, err.Error())
	}
}

func state(st *stat.Statfile) (*statfileState, error) {
	s, ok := st.State().(*statfileState)
	if !ok || s == nil {
		return nil, errors.AssertionFailedf("sqlite3: statfile %s has no sqlite state", st.Symbol())
	}
	return s, nil
}

// ProcessTokens loads token values for st
func (b *Backend) ProcessTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	stmt, err := s.db.PrepareContext(ctx, `SELECT value FROM tokens WHERE statfile = ? AND token = ?`)
	if err != nil {
		return db.Wrapf(err, "prepare token lookup")
	}
	defer stmt.Close()

	id := st.ID()
	for i := range tokens {
		var v float64
		err := stmt.QueryRowContext(ctx, s.symbol, int64(tokens[i].Hash)).Scan(&v)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			v = 0
		case err != nil:
			return db.Wrapf(err, "lookup token in %s", s.symbol)
		}
		tokens[i].Values[id] = v
	}
	return nil
}

// LearnTokens upserts token values for st in one transaction
func (b *Backend) LearnTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Wrapf(err, "begin transaction")
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO tokens (statfile, token, value) VALUES (?, ?, ?)
		ON CONFLICT (statfile, token) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return db.Wrapf(err, "prepare token upsert")
	}
	defer upsert.Close()
	remove, err := tx.PrepareContext(ctx, `DELETE FROM tokens WHERE statfile = ? AND token = ?`)
	if err != nil {
		return db.Wrapf(err, "prepare token delete")
	}
	defer remove.Close()

	// Zero values are not stored
	id := st.ID()
	for _, tok := range tokens {
		if tok.Values[id] == 0 {
			_, err = remove.ExecContext(ctx, s.symbol, int64(tok.Hash))
		} else {
			_, err = upsert.ExecContext(ctx, s.symbol, int64(tok.Hash), tok.Values[id])
		}
		if err != nil {
			return db.Wrapf(err, "store token in %s", s.symbol)
		}
	}
	if err := tx.Commit(); err != nil {
		return db.Wrapf(err, "commit tokens")
	}
	return nil
}

// TotalLearns returns the learn counter of st
func (b *Backend) TotalLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	return s.learns(ctx)
}

func (s *statfileState) learns(ctx context.Context) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count FROM learns WHERE statfile = ?`, s.symbol).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, db.Wrapf(err, "read learns for %s", s.symbol)
	}
	return uint64(n), nil
}

// IncLearns increments the learn counter of st
func (b *Backend) IncLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learns (statfile, count) VALUES (?, 1)
		ON CONFLICT (statfile) DO UPDATE SET count = count + 1`, s.symbol)
	if err != nil {
		return 0, db.Wrapf(err, "increment learns for %s", s.symbol)
	}
	return s.learns(ctx)
}

// DecLearns decrements the learn counter of st, stopping at zero
func (b *Backend) DecLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE learns SET count = MAX(count - 1, 0) WHERE statfile = ?`, s.symbol)
	if err != nil {
		return 0, db.Wrapf(err, "decrement learns for %s", s.symbol)
	}
	return s.learns(ctx)
}

// Stat reports learns and stored tokens
func (b *Backend) Stat(ctx context.Context, st *stat.Statfile) (stat.StatfileStat, error) {
	s, err := state(st)
	if err != nil {
		return stat.StatfileStat{}, err
	}
	learns, err := s.learns(ctx)
	if err != nil {
		return stat.StatfileStat{}, err
	}
	var tokens int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE statfile = ?`, s.symbol).Scan(&tokens); err != nil {
		return stat.StatfileStat{}, db.Wrapf(err, "count tokens for %s", s.symbol)
	}
	return stat.StatfileStat{Learns: learns, Tokens: uint64(tokens)}, nil
}

// Close releases the shared database reference
func (b *Backend) Close(state any) {
	s, ok := state.(*statfileState)
	if !ok || s == nil {
		return
	}
	b.release(s.path)
}
