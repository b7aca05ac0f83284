// Package appconfig loads application-level settings that govern the
// reliable transaction engine's retry policy, from a YAML file.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/digitalservo/cands-go/pkg/transaction"
	"gopkg.in/yaml.v3"
)

// TransactionSettings mirrors transaction.Settings in a YAML-friendly
// shape (durations as human strings rather than time.Duration's raw
// nanosecond form).
type TransactionSettings struct {
	Timeout      string `yaml:"timeout"`
	RetryCount   int    `yaml:"retry_count"`
	PollInterval string `yaml:"poll_interval"`
}

// Config is the top-level application configuration document.
type Config struct {
	Transaction TransactionSettings `yaml:"transaction"`
	Backend     string              `yaml:"backend"`
	HWConfig    string              `yaml:"hwconfig_path"`
}

// Load reads and parses an application config file from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("appconfig: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("appconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ToTransactionSettings converts the YAML-friendly TransactionSettings into
// transaction.Settings, falling back to transaction.DefaultSettings for any
// field left blank/zero.
func (c Config) ToTransactionSettings() (transaction.Settings, error) {
	settings := transaction.DefaultSettings()

	if c.Transaction.Timeout != "" {
		d, err := time.ParseDuration(c.Transaction.Timeout)
		if err != nil {
			return transaction.Settings{}, fmt.Errorf("appconfig: transaction.timeout: %w", err)
		}
		settings.Timeout = d
	}
	if c.Transaction.RetryCount != 0 {
		settings.RetryCount = c.Transaction.RetryCount
	}
	if c.Transaction.PollInterval != "" {
		d, err := time.ParseDuration(c.Transaction.PollInterval)
		if err != nil {
			return transaction.Settings{}, fmt.Errorf("appconfig: transaction.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	return settings, nil
}
