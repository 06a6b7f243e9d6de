package stat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/loop"
)

func TestClose_EveryStatfileOnce(t *testing.T) {
	f := newFixture()
	cfg := &config.Config{Classifiers: []config.ClassifierConfig{
		bayesConfig("first"),
		{Name: "second", Statfiles: []config.StatfileConfig{{Symbol: "S2_SPAM"}, {Symbol: "S2_HAM"}}},
	}}
	sc, err := Init(f.registry, cfg, nil, nil)
	require.NoError(t, err)

	sc.Close()
	sc.Close()

	for _, sym := range []string{"BAYES_SPAM", "BAYES_HAM", "S2_SPAM", "S2_HAM"} {
		assert.Equal(t, 1, f.rec.count("backend.close:"+sym), sym)
	}
	assert.Equal(t, 2, f.rec.count("cache.close"))
	assert.True(t, sc.Closed())
	assert.Empty(t, sc.Statfiles())
	assert.Nil(t, sc.Config())
	assert.Equal(t, int32(0), cfg.Refs())
}

func TestClose_SkippedStatfileNeverClosed(t *testing.T) {
	f := newFixture()
	f.backend.failSyms["BAYES_SPAM"] = true
	sc, err := Init(f.registry, &config.Config{Classifiers: []config.ClassifierConfig{bayesConfig("bayes")}}, nil, nil)
	require.NoError(t, err)
	sc.Close()

	assert.Equal(t, 0, f.rec.count("backend.close:BAYES_SPAM"))
	assert.Equal(t, 1, f.rec.count("backend.close:BAYES_HAM"))
}

func TestClose_Order(t *testing.T) {
	f := newFixture()
	sc, err := Init(f.registry, &config.Config{Classifiers: []config.ClassifierConfig{bayesConfig("bayes")}}, nil, nil)
	require.NoError(t, err)

	_, err = sc.RegisterAsync("refresh", nil, func(*AsyncElement, any) { f.rec.add("async.cleanup") }, nil, 0)
	require.NoError(t, err)
	sc.Close()

	var closing []string
	for _, e := range f.rec.list() {
		switch e {
		case "backend.close:BAYES_SPAM", "backend.close:BAYES_HAM", "cache.close", "async.cleanup":
			closing = append(closing, e)
		}
	}
	assert.Equal(t, []string{
		"backend.close:BAYES_SPAM",
		"backend.close:BAYES_HAM",
		"cache.close",
		"async.cleanup",
	}, closing)
}

func TestClose_CacheWithoutStateNotClosed(t *testing.T) {
	f := newFixture()
	f.cache.initErr = errors.New("locked")
	sc, err := Init(f.registry, &config.Config{Classifiers: []config.ClassifierConfig{bayesConfig("bayes")}}, nil, nil)
	require.NoError(t, err)
	sc.Close()
	assert.Equal(t, 0, f.rec.count("cache.close"))
}

func TestClose_NilContext(t *testing.T) {
	var sc *Context
	assert.NotPanics(t, sc.Close)
}

func TestAsyncQueue_DrainInOrderOnce(t *testing.T) {
	q := NewAsyncQueue()
	var order []string
	for _, n := range []string{"a", "b", "c"} {
		name := n
		require.NoError(t, q.Push(&AsyncElement{
			Name:     name,
			UserData: name,
			Cleanup: func(elt *AsyncElement, ud any) {
				order = append(order, ud.(string))
			},
		}))
	}
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, 3, q.drain())
	assert.Equal(t, 0, q.drain())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, q.Len())
}

func TestAsyncQueue_PushAfterDrain(t *testing.T) {
	q := NewAsyncQueue()
	q.drain()
	err := q.Push(&AsyncElement{Name: "late"})
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestRegisterAsync_PeriodicHandlerStopsAtClose(t *testing.T) {
	f := newFixture()
	rt := loop.New(context.Background())
	defer func() { _ = rt.Stop() }()

	sc, err := Init(f.registry, &config.Config{}, rt, nil)
	require.NoError(t, err)

	var ticks, cleanups atomic.Int32
	elt, err := sc.RegisterAsync("refresh",
		func(ctx context.Context, elt *AsyncElement, ud any) { ticks.Add(1) },
		func(elt *AsyncElement, ud any) { cleanups.Add(1) },
		"ud", 5*time.Millisecond,
	)
	require.NoError(t, err)
	assert.Equal(t, "refresh", elt.Name)
	assert.Equal(t, 1, sc.Async().Len())

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sc.Close()
	assert.Equal(t, int32(1), cleanups.Load())

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "handler ran after cleanup")

	_, err = sc.RegisterAsync("late", nil, nil, nil, 0)
	assert.True(t, errors.Is(err, errors.ErrClosed))
}
