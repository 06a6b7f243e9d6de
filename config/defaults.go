package config

import (
	"github.com/spf13/viper"
)

// Default values that are not provider names (those live in the stat package)
const (
	DefaultCachePath     = "learn_cache.sqlite"
	DefaultMetricsListen = "127.0.0.1:9731"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("stat.cache_path", DefaultCachePath)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
}

// BindEnvVars binds process-wide settings to STAT_* environment variables.
// Classifier definitions are only read from files.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("stat.cache_path", "STAT_CACHE_PATH")
	v.BindEnv("metrics.listen", "STAT_METRICS_LISTEN")
}

// applyDerived fills fields whose defaults depend on other fields
func (c *Config) applyDerived() {
	for i := range c.Classifiers {
		cl := &c.Classifiers[i]
		if cl.Name == "" {
			cl.Name = cl.Classifier
		}
		if cl.Name == "" {
			cl.Name = "bayes"
		}
	}
}
