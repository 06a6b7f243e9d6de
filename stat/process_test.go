package stat

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
)

func newProcessContext(t *testing.T, f *fixture, defs ...config.ClassifierConfig) *Context {
	t.Helper()
	if len(defs) == 0 {
		defs = []config.ClassifierConfig{bayesConfig("bayes")}
	}
	sc, err := Init(f.registry, &config.Config{Classifiers: defs}, nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	return sc
}

func TestLearnThenClassify(t *testing.T) {
	f := newFixture()
	sc := newProcessContext(t, f)
	ctx := context.Background()
	before := testutil.ToFloat64(LearnsTotal.WithLabelValues("bayes", "spam"))

	require.NoError(t, sc.Learn(ctx, NewTask("cheap pills online now"), true, ""))
	require.NoError(t, sc.Learn(ctx, NewTask("meeting notes for monday"), false, ""))
	assert.Equal(t, before+1, testutil.ToFloat64(LearnsTotal.WithLabelValues("bayes", "spam")))

	task := NewTask("cheap pills")
	require.NoError(t, sc.Classify(ctx, task))
	res, ok := task.Result("bayes")
	require.True(t, ok)
	assert.True(t, res.Spam)
	assert.InDelta(t, 1.0, res.Probability, 1e-9)
	assert.Equal(t, 2, res.Tokens)

	task = NewTask("monday meeting")
	require.NoError(t, sc.Classify(ctx, task))
	res, ok = task.Result("bayes")
	require.True(t, ok)
	assert.False(t, res.Spam)
}

func TestLearn_CacheIgnoreAndUnlearn(t *testing.T) {
	f := newFixture()
	sc := newProcessContext(t, f)
	ctx := context.Background()
	text := "limited offer click here"

	require.NoError(t, sc.Learn(ctx, NewTask(text), true, ""))
	err := sc.Learn(ctx, NewTask(text), true, "")
	assert.True(t, errors.Is(err, errors.ErrAlreadyLearned))

	require.NoError(t, sc.Learn(ctx, NewTask(text), false, ""))

	stats, err := sc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "BAYES_SPAM", stats[0].Symbol)
	assert.Equal(t, uint64(0), stats[0].Learns, "unlearn decrements the opposite class")
	assert.Equal(t, "BAYES_HAM", stats[1].Symbol)
	assert.Equal(t, uint64(1), stats[1].Learns)
	assert.Equal(t, uint64(4), stats[1].Tokens)

	task := NewTask(text)
	require.NoError(t, sc.Classify(ctx, task))
	res, ok := task.Result("bayes")
	require.True(t, ok)
	assert.False(t, res.Spam)
}

func TestLearn_WithoutCacheAlwaysLearns(t *testing.T) {
	f := newFixture()
	f.cache.initErr = errors.New("no cache")
	sc := newProcessContext(t, f)
	ctx := context.Background()

	require.NoError(t, sc.Learn(ctx, NewTask("same text"), true, ""))
	require.NoError(t, sc.Learn(ctx, NewTask("same text"), true, ""))

	stats, err := sc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats[0].Learns)
}

func TestLearn_SelectsClassifier(t *testing.T) {
	f := newFixture()
	sc := newProcessContext(t, f,
		bayesConfig("first"),
		config.ClassifierConfig{Name: "second", Statfiles: []config.StatfileConfig{{Symbol: "S2_SPAM"}, {Symbol: "S2_HAM"}}},
	)
	ctx := context.Background()

	require.NoError(t, sc.Learn(ctx, NewTask("buy now"), true, "second"))

	stats, err := sc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats[0].Learns)
	assert.Equal(t, uint64(1), stats[2].Learns)
	assert.Equal(t, "second", stats[2].Classifier)
	assert.True(t, stats[2].Spam)
	assert.Equal(t, "mmap", stats[2].Backend)

	err = sc.Learn(ctx, NewTask("buy now"), true, "third")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestClassify_BackendErrorIsLogged(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zap.WarnLevel)
	sc, err := Init(f.registry, &config.Config{Classifiers: []config.ClassifierConfig{bayesConfig("bayes")}}, nil, zap.New(core).Sugar())
	require.NoError(t, err)
	defer sc.Close()
	f.backend.loadErr = errors.New("connection refused")

	task := NewTask("anything")
	require.NoError(t, sc.Classify(context.Background(), task))
	assert.Empty(t, task.Results)
	assert.Equal(t, 2, logs.FilterMessage("Cannot load tokens for statfile").Len())
}

func TestClassify_NoClassifiers(t *testing.T) {
	f := newFixture()
	sc, err := Init(f.registry, &config.Config{}, nil, nil)
	require.NoError(t, err)
	defer sc.Close()

	task := NewTask("text")
	require.NoError(t, sc.Classify(context.Background(), task))
	assert.Empty(t, task.Results)

	err = sc.Learn(context.Background(), task, true, "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestProcess_AfterClose(t *testing.T) {
	f := newFixture()
	sc, err := Init(f.registry, &config.Config{Classifiers: []config.ClassifierConfig{bayesConfig("bayes")}}, nil, nil)
	require.NoError(t, err)
	sc.Close()

	ctx := context.Background()
	assert.True(t, errors.Is(sc.Classify(ctx, NewTask("x")), errors.ErrClosed))
	assert.True(t, errors.Is(sc.Learn(ctx, NewTask("x"), true, ""), errors.ErrClosed))
	_, err = sc.Stats(ctx)
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestTask_Digest(t *testing.T) {
	f := newFixture()
	sc := newProcessContext(t, f)

	a, b, c := NewTask("alpha beta gamma"), NewTask("gamma alpha beta"), NewTask("alpha beta delta")
	for _, task := range []*Task{a, b, c} {
		_, err := sc.prepareTokens(task)
		require.NoError(t, err)
	}
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
	assert.Len(t, a.Tokens(), 3)
	assert.Len(t, a.Tokens()[0].Values, 2)
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	ClassifiersActive.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ClassifiersActive))
}

func TestLearnResult_String(t *testing.T) {
	assert.Equal(t, "ok", LearnOK.String())
	assert.Equal(t, "ignore", LearnIgnore.String())
	assert.Equal(t, "unlearn", LearnUnlearn.String())
	assert.Equal(t, "unknown", LearnResult(7).String())
}
