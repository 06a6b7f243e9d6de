package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/libstat/errors"
)

// Sample returns a configuration with one bayes classifier and a spam/ham
// statfile pair on the mmap backend, rooted at dataDir.
func Sample(dataDir string) *Config {
	spam, ham := true, false
	return &Config{
		Stat:    StatConfig{CachePath: filepath.Join(dataDir, DefaultCachePath)},
		Metrics: MetricsConfig{Listen: DefaultMetricsListen},
		Classifiers: []ClassifierConfig{
			{
				Name:       "bayes",
				Backend:    "mmap",
				Classifier: "bayes",
				Tokenizer:  TokenizerConfig{Name: "osb"},
				Options: map[string]any{
					"min_tokens": 11,
					"min_learns": 200,
				},
				Statfiles: []StatfileConfig{
					{Symbol: "BAYES_SPAM", Spam: &spam, Path: filepath.Join(dataDir, "bayes.spam.statfile")},
					{Symbol: "BAYES_HAM", Spam: &ham, Path: filepath.Join(dataDir, "bayes.ham.statfile")},
				},
			},
		},
	}
}

// TOML renders the configuration as TOML
func (c *Config) TOML() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal toml")
	}
	return data, nil
}

// YAML renders the configuration as YAML
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal yaml")
	}
	return data, nil
}

// Write saves the configuration to configPath, rotating up to three backups
func Write(configPath string, cfg *Config) error {
	data, err := cfg.TOML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to back up config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", configPath)
	}
	return nil
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	for i := 3; i > 1; i-- {
		from := fmt.Sprintf("%s.back%d", configPath, i-1)
		to := fmt.Sprintf("%s.back%d", configPath, i)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", from)
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(configPath+".back1", content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// isBackupFile reports whether path is one of the rotating backups
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".back1" || ext == ".back2" || ext == ".back3"
}
