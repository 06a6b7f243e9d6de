package mmap

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/libstat/config"
	stattest "github.com/teranos/libstat/internal/testing"
	"github.com/teranos/libstat/stat"
)

func newContext(t *testing.T, statfiles []config.StatfileConfig) *stat.Context {
	t.Helper()
	reg := stattest.NewRegistry(t, stattest.Providers{Backend: New(zaptest.NewLogger(t).Sugar())})
	return stattest.NewContext(t, reg, config.ClassifierConfig{Name: "bayes", Statfiles: statfiles})
}

func TestBackend_RoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	statfiles := []config.StatfileConfig{
		{Symbol: "BAYES_SPAM", Path: filepath.Join(dir, "spam.statfile"), Size: 64 << 10},
		{Symbol: "BAYES_HAM", Path: filepath.Join(dir, "ham.statfile"), Size: 64 << 10},
	}
	ctx := context.Background()

	sc := newContext(t, statfiles)
	require.NoError(t, sc.Learn(ctx, stat.NewTask("a b c"), true, ""))
	require.NoError(t, sc.Learn(ctx, stat.NewTask("a b d"), true, ""))
	require.NoError(t, sc.Learn(ctx, stat.NewTask("x y z"), false, ""))
	sc.Close()

	sc = newContext(t, statfiles)

	stats, err := sc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(2), stats[0].Learns)
	assert.Equal(t, uint64(4), stats[0].Tokens)
	assert.Equal(t, uint64(1), stats[1].Learns)
	assert.Equal(t, uint64(3), stats[1].Tokens)

	task := stat.NewTask("a b")
	require.NoError(t, sc.Classify(ctx, task))
	tokens := task.Tokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, 2.0, tokens[0].Values[0])
	assert.Equal(t, 2.0, tokens[1].Values[0])
	assert.Equal(t, 0.0, tokens[0].Values[1])
}

func TestBackend_DecLearnsStopsAtZero(t *testing.T) {
	dir := t.TempDir()
	sc := newContext(t, []config.StatfileConfig{{Symbol: "BAYES_SPAM", Path: filepath.Join(dir, "s"), Size: 4096}})
	ctx := context.Background()
	st := sc.Statfile(0)
	b := st.Backend()

	n, err := b.IncLearns(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	n, err = b.DecLearns(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	n, err = b.DecLearns(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestBackend_MissingPathIsSoftFailure(t *testing.T) {
	dir := t.TempDir()
	sc := newContext(t, []config.StatfileConfig{
		{Symbol: "BAYES_SPAM"},
		{Symbol: "BAYES_HAM", Path: filepath.Join(dir, "ham")},
	})

	require.Len(t, sc.Statfiles(), 1)
	assert.Equal(t, "BAYES_HAM", sc.Statfile(0).Symbol())
}

func TestBackend_CorruptFileIsSoftFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not a statfile, just some bytes padding padding padding padding"), 0o644))

	sc := newContext(t, []config.StatfileConfig{{Symbol: "BAYES_SPAM", Path: bad}})
	assert.Empty(t, sc.Statfiles())
}

func TestBackend_TooSmall(t *testing.T) {
	_, err := openFile(filepath.Join(t.TempDir(), "tiny"), 100)
	assert.Error(t, err)
}

func TestFile_BlockCountOverflowRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow")
	size := int64(headerSize + minBlocks*blockSize)
	m, err := openFile(path, size)
	require.NoError(t, err)
	require.NoError(t, m.close())

	// minBlocks + 2^60 blocks wraps back to the real file size when multiplied by 16
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(data[offBlocks:], minBlocks+1<<60)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = openFile(path, size)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated or corrupt")
}

func TestFile_FullTable(t *testing.T) {
	m, err := openFile(filepath.Join(t.TempDir(), "full"), headerSize+minBlocks*blockSize)
	require.NoError(t, err)
	defer m.close()

	for h := uint64(1); h <= minBlocks; h++ {
		require.NoError(t, m.set(h, float64(h)))
	}
	assert.ErrorIs(t, m.set(minBlocks+1, 1), ErrStatfileFull)
	assert.Equal(t, uint64(minBlocks), m.header(offTokens))

	for h := uint64(1); h <= minBlocks; h++ {
		assert.Equal(t, float64(h), m.get(h))
	}
	require.NoError(t, m.set(3, 30), "existing keys update in place")
	assert.Equal(t, 30.0, m.get(3))
}

func TestFile_ZeroHashAndZeroValue(t *testing.T) {
	m, err := openFile(filepath.Join(t.TempDir(), "z"), 4096)
	require.NoError(t, err)
	defer m.close()

	require.NoError(t, m.set(0, 5))
	assert.Equal(t, 5.0, m.get(0))

	require.NoError(t, m.set(99, 0))
	assert.Equal(t, uint64(1), m.header(offTokens), "zero values for new tokens take no block")
}
