package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/libstat/errors"
)

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

// withConfig points the package flags at a fresh sample configuration
func withConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	prevPath, prevDir := ConfigPath, configDataDir
	t.Cleanup(func() { ConfigPath, configDataDir = prevPath, prevDir })

	ConfigPath = filepath.Join(dir, "libstat.toml")
	configDataDir = filepath.Join(dir, "data")
	require.NoError(t, runConfigInit(testCmd(), nil))
	return dir
}

func writeMessage(t *testing.T, dir, text string) string {
	t.Helper()
	p := filepath.Join(dir, "message.txt")
	require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	return p
}

func TestConfigInitThenCheck(t *testing.T) {
	withConfig(t)

	_, err := os.Stat(ConfigPath)
	require.NoError(t, err)
	assert.NoError(t, runConfigCheck(testCmd(), nil))
}

func TestConfigCheck_UnknownKey(t *testing.T) {
	withConfig(t)

	f, err := os.OpenFile(ConfigPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("\n[typo]\nbacked = 'mmap'\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = runConfigCheck(testCmd(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestConfigShow_Format(t *testing.T) {
	withConfig(t)

	prev := configFormat
	t.Cleanup(func() { configFormat = prev })

	configFormat = "yaml"
	assert.NoError(t, runConfigShow(testCmd(), nil))

	configFormat = "json"
	assert.Error(t, runConfigShow(testCmd(), nil))
}

func TestCheckLearnStat(t *testing.T) {
	dir := withConfig(t)
	msg := writeMessage(t, dir, "cheap pills online buy now limited offer")

	require.NoError(t, runCheck(testCmd(), nil))

	prevSpam, prevHam := learnSpam, learnHam
	t.Cleanup(func() { learnSpam, learnHam = prevSpam, prevHam })
	learnSpam, learnHam = true, false

	require.NoError(t, runLearn(testCmd(), []string{msg}))
	// Second learn with the same class is reported, not failed
	require.NoError(t, runLearn(testCmd(), []string{msg}))

	assert.NoError(t, runStat(testCmd(), nil))
	assert.NoError(t, runClassify(testCmd(), []string{msg}))
}

func TestCheck_MissingConfig(t *testing.T) {
	prev := ConfigPath
	t.Cleanup(func() { ConfigPath = prev })
	ConfigPath = filepath.Join(t.TempDir(), "absent.toml")

	assert.Error(t, runCheck(testCmd(), nil))
}

func TestReadMessage(t *testing.T) {
	p := writeMessage(t, t.TempDir(), "  hello world \n")
	text, err := readMessage(p)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = readMessage(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))
}
