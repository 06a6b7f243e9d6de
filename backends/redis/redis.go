// Package redis implements the "redis" storage backend. Each statfile is a
// hash keyed "<prefix>_<symbol>" whose fields are decimal token hashes plus
// a "learns" counter field.
package redis

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "redis"

const (
	DefaultPrefix      = "RS"
	DefaultTimeout     = 2 * time.Second
	learnsField        = "learns"
	unknownLearnsValue = -1
)

// Backend is the redis provider
type Backend struct {
	logger *zap.SugaredLogger
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Backend {
	return &Backend{logger: logger.OrComponent(log, "backend.redis")}
}

// Name returns the provider name
func (b *Backend) Name() string { return Name }

type statfileState struct {
	client  *goredis.Client
	key     string
	symbol  string
	timeout time.Duration

	// learns caches the counter between refreshes when refresh_interval is set
	learns atomic.Int64
	cached bool
	closed atomic.Bool
}

// Init connects to the first of the servers option (statfile options first,
// then classifier options). Recognized options: servers, password, db,
// prefix, timeout and refresh_interval.
func (b *Backend) Init(sc *stat.Context, cfg *config.Config, st *stat.Statfile) (any, error) {
	opts := config.Merge(st.Classifier().Config().Options, st.Config().Options)
	servers := config.OptionStrings(opts, "servers")
	if len(servers) == 0 {
		return nil, errors.NewInvalidConfigError("redis statfile %s has no servers", st.Symbol())
	}
	prefix := config.OptionString(opts, "prefix", DefaultPrefix)
	timeout := config.OptionDuration(opts, "timeout", DefaultTimeout)

	client := goredis.NewClient(&goredis.Options{
		Addr:         servers[0],
		Password:     config.OptionString(opts, "password", ""),
		DB:           config.OptionInt(opts, "db", 0),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect to redis %s", servers[0])
	}

	s := &statfileState{
		client:  client,
		key:     prefix + "_" + st.Symbol(),
		symbol:  st.Symbol(),
		timeout: timeout,
	}
	s.learns.Store(unknownLearnsValue)

	if interval := config.OptionDuration(opts, "refresh_interval", 0); interval > 0 {
		s.cached = true
		if _, err := sc.RegisterAsync("redis learns "+st.Symbol(), b.refresh, nil, s, interval); err != nil {
			client.Close()
			return nil, err
		}
	}

	b.logger.Debugw("Connected statfile to redis",
		logger.FieldStatfile, st.Symbol(),
		logger.FieldAddress, servers[0],
		"key", s.key,
	)
	return s, nil
}

// refresh reloads the cached learns counter; it runs on the runtime loop
func (b *Backend) refresh(ctx context.Context, elt *stat.AsyncElement, ud any) {
	s := ud.(*statfileState)
	if s.closed.Load() {
		return
	}
	n, err := s.readLearns(ctx)
	if err != nil {
		b.logger.Warnw("Cannot refresh learns", logger.FieldStatfile, s.symbol, logger.FieldError, err.Error())
		return
	}
	s.learns.Store(int64(n))
}

func (s *statfileState) readLearns(ctx context.Context) (uint64, error) {
	n, err := s.client.HGet(ctx, s.key, learnsField).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

func state(st *stat.Statfile) (*statfileState, error) {
	s, ok := st.State().(*statfileState)
	if !ok || s == nil {
		return nil, errors.AssertionFailedf("redis: statfile %s has no redis state", st.Symbol())
	}
	return s, nil
}

func tokenField(h uint64) string {
	return strconv.FormatUint(h, 10)
}

// ProcessTokens loads token values with one pipelined round trip
func (b *Backend) ProcessTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(tokens))
	for i := range tokens {
		cmds[i] = pipe.HGet(ctx, s.key, tokenField(tokens[i].Hash))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return errors.Wrapf(err, "load tokens from %s", s.key)
	}

	id := st.ID()
	for i, cmd := range cmds {
		v, err := cmd.Float64()
		switch {
		case errors.Is(err, goredis.Nil):
			v = 0
		case err != nil:
			return errors.Wrapf(err, "parse token value in %s", s.key)
		}
		tokens[i].Values[id] = v
	}
	return nil
}

// LearnTokens writes token values with one pipelined round trip; zero values are removed
func (b *Backend) LearnTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	s, err := state(st)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	id := st.ID()
	pipe := s.client.TxPipeline()
	for _, tok := range tokens {
		field := tokenField(tok.Hash)
		if v := tok.Values[id]; v == 0 {
			pipe.HDel(ctx, s.key, field)
		} else {
			pipe.HSet(ctx, s.key, field, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "store tokens in %s", s.key)
	}
	return nil
}

// TotalLearns returns the learns counter, from the refresh cache when enabled
func (b *Backend) TotalLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	if s.cached {
		if n := s.learns.Load(); n >= 0 {
			return uint64(n), nil
		}
	}
	n, err := s.readLearns(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "read learns from %s", s.key)
	}
	s.learns.Store(int64(n))
	return n, nil
}

// IncLearns increments the learns counter
func (b *Backend) IncLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	n, err := s.client.HIncrBy(ctx, s.key, learnsField, 1).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "increment learns in %s", s.key)
	}
	s.learns.Store(n)
	return uint64(n), nil
}

// decrScript decrements the learns field without going below zero
var decrScript = goredis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if n > 0 then
  n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
end
return n
`)

// DecLearns decrements the learns counter, stopping at zero
func (b *Backend) DecLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	s, err := state(st)
	if err != nil {
		return 0, err
	}
	n, err := decrScript.Run(ctx, s.client, []string{s.key}, learnsField).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "decrement learns in %s", s.key)
	}
	s.learns.Store(n)
	return uint64(n), nil
}

// Stat reports learns and stored tokens
func (b *Backend) Stat(ctx context.Context, st *stat.Statfile) (stat.StatfileStat, error) {
	s, err := state(st)
	if err != nil {
		return stat.StatfileStat{}, err
	}
	pipe := s.client.Pipeline()
	hlen := pipe.HLen(ctx, s.key)
	hasLearns := pipe.HExists(ctx, s.key, learnsField)
	learns := pipe.HGet(ctx, s.key, learnsField)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return stat.StatfileStat{}, errors.Wrapf(err, "stat %s", s.key)
	}

	tokens := hlen.Val()
	if hasLearns.Val() {
		tokens--
	}
	n, err := learns.Uint64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return stat.StatfileStat{}, errors.Wrapf(err, "parse learns in %s", s.key)
	}
	return stat.StatfileStat{Learns: n, Tokens: uint64(tokens)}, nil
}

// Close disconnects the statfile client
func (b *Backend) Close(state any) {
	s, ok := state.(*statfileState)
	if !ok || s == nil {
		return
	}
	s.closed.Store(true)
	if err := s.client.Close(); err != nil {
		b.logger.Warnw("Cannot close redis client", logger.FieldStatfile, s.symbol, logger.FieldError, err.Error())
	}
}
