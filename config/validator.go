package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/framepool"
)

// Validate checks if the configuration is valid, filling in defaults for
// absent fields.
func Validate(cfg *Config) error {
	// Validate pool_slots
	if cfg.PoolSlots == 0 {
		cfg.PoolSlots = 4 // default
	}
	if cfg.PoolSlots < framepool.MinSlots || cfg.PoolSlots > framepool.MaxSlots {
		return fmt.Errorf("pool_slots must be in [%d,%d], got %d",
			framepool.MinSlots, framepool.MaxSlots, cfg.PoolSlots)
	}

	// Validate sharing_mode
	if cfg.SharingMode == "" {
		cfg.SharingMode = framepool.PoolMode.String() // default
	}
	if _, err := framepool.ParseMode(cfg.SharingMode); err != nil {
		return fmt.Errorf("sharing_mode must be 'pool' or 'broadcast', got '%s'", cfg.SharingMode)
	}

	// acquire_budget_ms needs no range check: zero selects the built-in
	// default and negative values mean a single acquire attempt.

	// Validate shutdown_timeout_s
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 2 // default
	}
	if cfg.ShutdownTimeoutS < 0 {
		return fmt.Errorf("shutdown_timeout_s must be >= 0, got %d", cfg.ShutdownTimeoutS)
	}

	// Validate log_level
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // default
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level '%s' is not a valid level", cfg.LogLevel)
	}

	return nil
}
