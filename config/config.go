// Package config holds the configuration tree consumed by the stat bootstrap.
//
// A Config is loaded once (viper, TOML) and then shared read-only between the
// stat Context and whoever loaded it. Shared ownership is tracked with
// Retain/Release; the stat core takes one reference at bootstrap and drops it
// at teardown.
package config

import (
	"strings"
	"sync/atomic"
)

// Config represents the complete libstat configuration
type Config struct {
	Stat        StatConfig         `mapstructure:"stat" toml:"stat" yaml:"stat"`
	Metrics     MetricsConfig      `mapstructure:"metrics" toml:"metrics" yaml:"metrics"`
	Classifiers []ClassifierConfig `mapstructure:"classifier" toml:"classifier" yaml:"classifier"`

	refs atomic.Int32
}

// StatConfig configures process-wide stat settings
type StatConfig struct {
	CachePath string `mapstructure:"cache_path" toml:"cache_path" yaml:"cache_path"` // Default learn cache database (default: learn_cache.sqlite)
}

// MetricsConfig configures the prometheus endpoint exposed by statd serve
type MetricsConfig struct {
	Listen string `mapstructure:"listen" toml:"listen" yaml:"listen"` // e.g. "127.0.0.1:9731", empty disables
}

// ClassifierConfig is one [[classifier]] definition
type ClassifierConfig struct {
	Name       string           `mapstructure:"name" toml:"name" yaml:"name"`
	Backend    string           `mapstructure:"backend" toml:"backend" yaml:"backend"`          // Storage backend name (default: mmap)
	Classifier string           `mapstructure:"classifier" toml:"classifier" yaml:"classifier"` // Algorithm name (default: bayes)
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer" toml:"tokenizer" yaml:"tokenizer"`
	Options    map[string]any   `mapstructure:"options" toml:"options,omitempty" yaml:"options,omitempty"`
	Statfiles  []StatfileConfig `mapstructure:"statfile" toml:"statfile" yaml:"statfile"`
}

// TokenizerConfig references a tokenizer by name plus its options
type TokenizerConfig struct {
	Name    string         `mapstructure:"name" toml:"name" yaml:"name"` // default: osb
	Options map[string]any `mapstructure:"options" toml:"options,omitempty" yaml:"options,omitempty"`
}

// StatfileConfig is one [[classifier.statfile]] definition
type StatfileConfig struct {
	Symbol  string         `mapstructure:"symbol" toml:"symbol" yaml:"symbol"`
	Label   string         `mapstructure:"label" toml:"label,omitempty" yaml:"label,omitempty"`
	Spam    *bool          `mapstructure:"spam" toml:"spam,omitempty" yaml:"spam,omitempty"` // nil = guess from symbol
	Path    string         `mapstructure:"path" toml:"path,omitempty" yaml:"path,omitempty"`
	Size    int64          `mapstructure:"size" toml:"size,omitempty" yaml:"size,omitempty"` // mmap file size in bytes
	Options map[string]any `mapstructure:"options" toml:"options,omitempty" yaml:"options,omitempty"`
}

// CacheOptions returns the options.cache sub-tree, or nil when absent
func (c *ClassifierConfig) CacheOptions() map[string]any {
	if c.Options == nil {
		return nil
	}
	return AsMap(c.Options["cache"])
}

// CacheName returns options.cache.name, or "" when unset
func (c *ClassifierConfig) CacheName() string {
	return OptionString(c.CacheOptions(), "name", "")
}

// IsSpam reports whether this statfile holds the spam class.
// An explicit spam flag wins; otherwise the symbol is checked for "SPAM".
func (s *StatfileConfig) IsSpam() bool {
	if s.Spam != nil {
		return *s.Spam
	}
	return strings.Contains(strings.ToUpper(s.Symbol), "SPAM")
}

// Retain takes a shared-ownership reference and returns c
func (c *Config) Retain() *Config {
	c.refs.Add(1)
	return c
}

// Release drops a shared-ownership reference and returns the remaining count.
// Releasing an unreferenced config is a no-op returning 0.
func (c *Config) Release() int32 {
	for {
		cur := c.refs.Load()
		if cur <= 0 {
			return 0
		}
		if c.refs.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Refs returns the current shared-ownership count
func (c *Config) Refs() int32 {
	return c.refs.Load()
}
