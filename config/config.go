// Package config loads and persists the pipeline tuning knobs as a flat
// YAML document. Values feed framepool and asyncstage at construction time;
// changing pool_slots or sharing_mode takes effect on the next pool
// recreation, never by mutating a live pool in place.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/framekit/framepool"
)

// Config represents the complete pipeline configuration
type Config struct {
	PoolSlots        int    `yaml:"pool_slots"`         // frame buffer slots per pool [1,128]
	SharingMode      string `yaml:"sharing_mode"`       // pool or broadcast
	AcquireBudgetMS  int    `yaml:"acquire_budget_ms"`  // exhaustion retry budget; 0 = built-in default, negative = single attempt
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 2)
	LogLevel         string `yaml:"log_level"`          // trace, debug, info, warn, error
}

// Default returns a configuration with every knob at its built-in value.
func Default() *Config {
	return &Config{
		PoolSlots:        4,
		SharingMode:      framepool.PoolMode.String(),
		AcquireBudgetMS:  int(framepool.DefaultAcquireBudget / time.Millisecond),
		ShutdownTimeoutS: 2,
		LogLevel:         "info",
	}
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// Save writes the configuration as YAML to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Mode returns the sharing mode as a framepool constant. The config must
// have passed Validate first.
func (c *Config) Mode() framepool.Mode {
	m, _ := framepool.ParseMode(c.SharingMode)
	return m
}

// AcquireBudget returns the acquire budget as a duration. Zero and negative
// values keep their framepool meaning (built-in default, single attempt).
func (c *Config) AcquireBudget() time.Duration {
	return time.Duration(c.AcquireBudgetMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
