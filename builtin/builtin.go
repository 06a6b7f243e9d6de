// Package builtin registers the bundled providers
package builtin

import (
	"go.uber.org/zap"

	"github.com/teranos/libstat/backends/mmap"
	"github.com/teranos/libstat/backends/pebblestore"
	"github.com/teranos/libstat/backends/redis"
	"github.com/teranos/libstat/backends/sqlite"
	sqlitecache "github.com/teranos/libstat/cache/sqlite"
	"github.com/teranos/libstat/classifiers/bayes"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/stat"
	"github.com/teranos/libstat/tokenizers/osb"
)

// Register adds every bundled provider to reg. Tables are filled in the
// order classifier, tokenizers, backends, cache.
func Register(reg *stat.Registry, log *zap.SugaredLogger) error {
	named := func(name string) *zap.SugaredLogger {
		if log == nil {
			return nil
		}
		return log.Named(name)
	}

	steps := []func() error{
		func() error { return reg.RegisterClassifier(bayes.New(named("classifier.bayes"))) },
		func() error { return reg.RegisterTokenizer(osb.NewText()) },
		func() error { return reg.RegisterTokenizer(osb.New()) },
		func() error { return reg.RegisterBackend(mmap.New(named("backend.mmap"))) },
		func() error { return reg.RegisterBackend(sqlite.New(named("backend.sqlite3"))) },
		func() error { return reg.RegisterBackend(redis.New(named("backend.redis"))) },
		func() error { return reg.RegisterBackend(pebblestore.New(named("backend.pebble"))) },
		func() error { return reg.RegisterCache(sqlitecache.New(named("cache.sqlite3"))) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return errors.Wrap(err, "register builtin providers")
		}
	}
	return nil
}

// NewRegistry returns a registry holding every bundled provider
func NewRegistry(log *zap.SugaredLogger) (*stat.Registry, error) {
	reg := stat.NewRegistry()
	if err := Register(reg, log); err != nil {
		return nil, err
	}
	return reg, nil
}
