// Package sqlite implements the default "sqlite3" learn cache. It remembers
// the digest and class of every learned message per classifier, with an
// in-memory LRU in front of the learn_cache table.
package sqlite

import (
	"context"
	"database/sql"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/db"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "sqlite3"

// DefaultLRUSize bounds the in-memory front
const DefaultLRUSize = 4096

// Cache is the sqlite3 learn cache provider
type Cache struct {
	logger *zap.SugaredLogger
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Cache {
	return &Cache{logger: logger.OrComponent(log, "cache.sqlite3")}
}

// Name returns the provider name
func (c *Cache) Name() string { return Name }

type cacheState struct {
	path  string
	db    *sql.DB
	front *lru.Cache[entryKey, bool]
}

// entryKey scopes a message digest to the learning classifier
type entryKey struct {
	classifier string
	digest     uint64
}

// Init opens the cache database. Options: path (default stat.cache_path)
// and lru_size.
func (c *Cache) Init(sc *stat.Context, cfg *config.Config, opts map[string]any) (any, error) {
	path := config.OptionString(opts, "path", cfg.Stat.CachePath)
	if path == "" {
		path = config.DefaultCachePath
	}
	size := config.OptionInt(opts, "lru_size", DefaultLRUSize)
	if size <= 0 {
		return nil, errors.NewInvalidConfigError("cache lru_size must be positive, got %d", size)
	}

	front, err := lru.New[entryKey, bool](size)
	if err != nil {
		return nil, errors.Wrap(err, "create cache front")
	}
	database, err := db.OpenWithMigrations(path, c.logger)
	if err != nil {
		return nil, err
	}
	return &cacheState{path: path, db: database, front: front}, nil
}

// Process records the class of task for the classifier found in ctx and
// reports whether it is new, a repeat, or a class flip
func (c *Cache) Process(ctx context.Context, task *stat.Task, spam bool, state any) (stat.LearnResult, error) {
	s, ok := state.(*cacheState)
	if !ok || s == nil {
		return stat.LearnOK, errors.AssertionFailedf("sqlite3 cache: unexpected state %T", state)
	}
	key := entryKey{digest: task.Digest()}
	if cl := stat.ClassifierFromContext(ctx); cl != nil {
		key.classifier = cl.Name()
	}

	prev, found := s.front.Get(key)
	if !found {
		var err error
		prev, found, err = s.lookup(ctx, key)
		if err != nil {
			return stat.LearnOK, err
		}
	}

	if found && prev == spam {
		return stat.LearnIgnore, nil
	}
	if err := s.store(ctx, key, spam); err != nil {
		return stat.LearnOK, err
	}
	s.front.Add(key, spam)

	if found {
		c.logger.Debugw("Class flip, unlearning",
			logger.FieldClassifier, key.classifier,
			logger.FieldTaskID, task.ID,
		)
		return stat.LearnUnlearn, nil
	}
	return stat.LearnOK, nil
}

// Revert undoes a Process call whose learn failed: a class flip restores
// the previous class, a new entry is removed
func (c *Cache) Revert(ctx context.Context, task *stat.Task, spam bool, res stat.LearnResult, state any) error {
	s, ok := state.(*cacheState)
	if !ok || s == nil {
		return errors.AssertionFailedf("sqlite3 cache: unexpected state %T", state)
	}
	key := entryKey{digest: task.Digest()}
	if cl := stat.ClassifierFromContext(ctx); cl != nil {
		key.classifier = cl.Name()
	}

	switch res {
	case stat.LearnUnlearn:
		if err := s.store(ctx, key, !spam); err != nil {
			return err
		}
		s.front.Add(key, !spam)
	case stat.LearnOK:
		s.front.Remove(key)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM learn_cache WHERE classifier = ? AND digest = ?`,
			key.classifier, int64(key.digest)); err != nil {
			return db.Wrapf(err, "revert learn cache")
		}
	}
	return nil
}

func (s *cacheState) lookup(ctx context.Context, key entryKey) (spam, found bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx,
		`SELECT spam FROM learn_cache WHERE classifier = ? AND digest = ?`,
		key.classifier, int64(key.digest)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, db.Wrapf(err, "query learn cache")
	}
	return v == 1, true, nil
}

func (s *cacheState) store(ctx context.Context, key entryKey, spam bool) error {
	v := 0
	if spam {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learn_cache (classifier, digest, spam) VALUES (?, ?, ?)
		ON CONFLICT (classifier, digest) DO UPDATE SET spam = excluded.spam, learned_at = CURRENT_TIMESTAMP`,
		key.classifier, int64(key.digest), v)
	if err != nil {
		return db.Wrapf(err, "update learn cache")
	}
	return nil
}

// Close closes the cache database
func (c *Cache) Close(state any) {
	s, ok := state.(*cacheState)
	if !ok || s == nil {
		return
	}
	s.front.Purge()
	if err := s.db.Close(); err != nil {
		c.logger.Warnw("Cannot close learn cache", logger.FieldPath, s.path, logger.FieldError, err.Error())
	}
}
