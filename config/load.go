package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/libstat/errors"
)

// EnvPrefix is the prefix for environment overrides (STAT_CACHE_PATH, ...)
const EnvPrefix = "STAT"

// ConfigFileName is the file searched for when no path is given
const ConfigFileName = "libstat.toml"

// Load reads the configuration at path, or searches the default
// locations when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrNotFound, "no configuration file found"),
			"pass --config or create ./"+ConfigFileName)
	}
	return LoadFromFile(path)
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	config.applyDerived()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific TOML file
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", configPath)
	}
	return cfg, nil
}

// newViper initializes Viper with env binding and defaults
func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)
	return v
}

// findConfig returns the first existing config file in precedence order:
// working directory, then user config dir, then /etc.
func findConfig() string {
	candidates := []string{ConfigFileName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "libstat", ConfigFileName))
	}
	candidates = append(candidates, filepath.Join("/etc/libstat", ConfigFileName))

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
