// Package pebblestore implements the "pebble" storage backend on an
// embedded LSM store. Statfiles naming the same directory share one store.
//
// Keys are the statfile symbol, a zero byte, then either the 8-byte
// big-endian token hash or one of the counter names. Values are float64
// bits for tokens and uint64 for counters.
package pebblestore

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "pebble"

const (
	learnsKey = "learns"
	tokensKey = "tokens"
)

// Backend is the pebble provider
type Backend struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	pool map[string]*sharedStore
}

type sharedStore struct {
	db   *pebble.DB
	refs int
}

type statfileState struct {
	dir    string
	prefix []byte
	db     *pebble.DB
	mu     sync.Mutex // serializes read-modify-write of counters
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Backend {
	return &Backend{
		logger: logger.OrComponent(log, "backend.pebble"),
		pool:   make(map[string]*sharedStore),
	}
}

// Name returns the provider name
func (b *Backend) Name() string { return Name }

// Init opens (or reuses) the store in the statfile path directory
func (b *Backend) Init(sc *stat.Context, cfg *config.Config, st *stat.Statfile) (any, error) {
	dir := st.Config().Path
	if dir == "" {
		return nil, errors.NewInvalidConfigError("statfile %s has no path", st.Symbol())
	}
	db, err := b.acquire(dir)
	if err != nil {
		return nil, err
	}
	prefix := append([]byte(st.Symbol()), 0)
	return &statfileState{dir: dir, prefix: prefix, db: db}, nil
}

func (b *Backend) acquire(dir string) (*pebble.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.pool[dir]; ok {
		s.refs++
		return s.db, nil
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store %s", dir)
	}
	b.pool[dir] = &sharedStore{db: db, refs: 1}
	b.logger.Debugw("Opened pebble store", logger.FieldPath, dir)
	return db, nil
}

func (b *Backend) release(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.pool[dir]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(b.pool, dir)
	if err := s.db.Close(); err != nil {
		b.logger.Warnw("Cannot close pebble store", logger.FieldPath, dir, logger.FieldError, err.Error())
	}
}

func (s *statfileState) tokenKey(h uint64) []byte {
	key := make([]byte, len(s.prefix)+8)
	copy(key, s.prefix)
	binary.BigEndian.PutUint64(key[len(s.prefix):], h)
	return key
}

func (s *statfileState) counterKey(name string) []byte {
	key := make([]byte, 0, len(s.prefix)+len(name))
	key = append(key, s.prefix...)
	return append(key, name...)
}

// get returns the 8-byte value at key, reporting whether it exists
func (s *statfileState) get(key []byte) (uint64, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, errors.Newf("corrupt value of length %d", len(val))
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func encode(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func state(st *stat.Statfile) (*statfileState, error) {
	s, ok := st.State().(*statfileState)
	if !ok || s == nil {
		return nil, errors.AssertionFailedf("pebble: statfile %s has no pebble state", st.Symbol())
	}
	return s, nil
}

// ProcessTokens loads token values for st
func (b *Backend) ProcessTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	id := st.ID()
	for i := range tokens {
		bits, _, err := s.get(s.tokenKey(tokens[i].Hash))
		if err != nil {
			return errors.Wrapf(err, "read token from %s", s.dir)
		}
		tokens[i].Values[id] = math.Float64frombits(bits)
	}
	return nil
}

// LearnTokens writes token values for st in one batch; zero values delete
func (b *Backend) LearnTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count, _, err := s.get(s.counterKey(tokensKey))
	if err != nil {
		return errors.Wrapf(err, "read token count from %s", s.dir)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	seen := make(map[uint64]bool, len(tokens))
	id := st.ID()
	for _, tok := range tokens {
		if seen[tok.Hash] {
			continue
		}
		seen[tok.Hash] = true

		key := s.tokenKey(tok.Hash)
		_, exists, err := s.get(key)
		if err != nil {
			return errors.Wrapf(err, "read token from %s", s.dir)
		}
		v := tok.Values[id]
		switch {
		case v == 0 && exists:
			err = batch.Delete(key, nil)
			count--
		case v == 0:
			continue
		default:
			err = batch.Set(key, encode(math.Float64bits(v)), nil)
			if !exists {
				count++
			}
		}
		if err != nil {
			return errors.Wrap(err, "stage token write")
		}
	}
	if err := batch.Set(s.counterKey(tokensKey), encode(count), nil); err != nil {
		return errors.Wrap(err, "stage token count")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "commit tokens to %s", s.dir)
	}
	return nil
}

// TotalLearns returns the learn counter of st
func (b *Backend) TotalLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	n, _, err := s.get(s.counterKey(learnsKey))
	return n, err
}

func (b *Backend) addLearns(st *stat.Statfile, delta int) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _, err := s.get(s.counterKey(learnsKey))
	if err != nil {
		return 0, err
	}
	switch {
	case delta > 0:
		n++
	case n > 0:
		n--
	}
	if err := s.db.Set(s.counterKey(learnsKey), encode(n), pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "update learns in %s", s.dir)
	}
	return n, nil
}

// IncLearns increments the learn counter of st
func (b *Backend) IncLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	return b.addLearns(st, 1)
}

// DecLearns decrements the learn counter of st, stopping at zero
func (b *Backend) DecLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	return b.addLearns(st, -1)
}

// Stat reports the learn and token counters
func (b *Backend) Stat(ctx context.Context, st *stat.Statfile) (stat.StatfileStat, error) {
	s, err := state(st)
	if err != nil {
		return stat.StatfileStat{}, err
	}
	learns, _, err := s.get(s.counterKey(learnsKey))
	if err != nil {
		return stat.StatfileStat{}, err
	}
	tokens, _, err := s.get(s.counterKey(tokensKey))
	if err != nil {
		return stat.StatfileStat{}, err
	}
	return stat.StatfileStat{Learns: learns, Tokens: tokens}, nil
}

// Close releases the shared store reference
func (b *Backend) Close(state any) {
	s, ok := state.(*statfileState)
	if !ok || s == nil {
		return
	}
	b.release(s.dir)
}
