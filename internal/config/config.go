// Package config holds the environment-driven configuration surface of the
// server and its ordering invariants between the timeout tiers.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Environment variable names.
const (
	EnvServerAddr     = "TA_SERVER_ADDR"
	EnvLogLevel       = "TA_LOG_LEVEL"
	EnvComputeTimeout = "TA_COMPUTE_TIMEOUT"
	EnvBatchTimeout   = "TA_BATCH_TIMEOUT"
	EnvToolTimeout    = "TA_TOOL_TIMEOUT"
	EnvSessionTimeout = "TA_SESSION_TIMEOUT"
	EnvSweepInterval  = "TA_SWEEP_INTERVAL"
	EnvAutoRecreate   = "TA_AUTO_RECREATE"
)

// Config is the complete runtime configuration.
type Config struct {
	ServerAddr string
	LogLevel   string

	// ComputeTimeout bounds one engine call. It is deliberately the
	// shortest tier so a slow computation never eats a whole request
	// budget.
	ComputeTimeout time.Duration

	// BatchTimeout bounds a whole aggregate calculation.
	BatchTimeout time.Duration

	// ToolTimeout bounds one tool execution end to end.
	ToolTimeout time.Duration

	// SessionTimeout is the inactivity window after which a session is
	// eligible for eviction.
	SessionTimeout time.Duration

	// SweepInterval is how often the eviction sweep runs. Must be shorter
	// than SessionTimeout or eviction lags behind staleness.
	SweepInterval time.Duration

	// AutoRecreate degrades unknown-session errors to fresh sessions.
	// Non-standard compatibility mode, off by default.
	AutoRecreate bool
}

// Default returns the configuration used when no environment overrides are
// present.
func Default() Config {
	return Config{
		ServerAddr:     ":8080",
		LogLevel:       "info",
		ComputeTimeout: 1 * time.Second,
		BatchTimeout:   10 * time.Second,
		ToolTimeout:    30 * time.Second,
		SessionTimeout: 30 * time.Minute,
		SweepInterval:  5 * time.Minute,
		AutoRecreate:   false,
	}
}

// FromEnv builds a Config from the environment on top of the defaults and
// validates it.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvServerAddr); v != "" {
		cfg.ServerAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.ComputeTimeout, err = durationFromEnv(EnvComputeTimeout, cfg.ComputeTimeout); err != nil {
		return cfg, err
	}
	if cfg.BatchTimeout, err = durationFromEnv(EnvBatchTimeout, cfg.BatchTimeout); err != nil {
		return cfg, err
	}
	if cfg.ToolTimeout, err = durationFromEnv(EnvToolTimeout, cfg.ToolTimeout); err != nil {
		return cfg, err
	}
	if cfg.SessionTimeout, err = durationFromEnv(EnvSessionTimeout, cfg.SessionTimeout); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = durationFromEnv(EnvSweepInterval, cfg.SweepInterval); err != nil {
		return cfg, err
	}

	if v := os.Getenv(EnvAutoRecreate); v != "" {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return cfg, errors.Wrapf(parseErr, "parsing %s", EnvAutoRecreate)
		}
		cfg.AutoRecreate = b
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate enforces the timeout ordering invariant:
// compute < batch < tool < session inactivity, and sweep < inactivity.
func (c Config) Validate() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{EnvComputeTimeout, c.ComputeTimeout},
		{EnvBatchTimeout, c.BatchTimeout},
		{EnvToolTimeout, c.ToolTimeout},
		{EnvSessionTimeout, c.SessionTimeout},
		{EnvSweepInterval, c.SweepInterval},
	} {
		if d.value <= 0 {
			return errors.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if c.ComputeTimeout >= c.BatchTimeout {
		return errors.Errorf("%s (%s) must be shorter than %s (%s)",
			EnvComputeTimeout, c.ComputeTimeout, EnvBatchTimeout, c.BatchTimeout)
	}
	if c.BatchTimeout >= c.ToolTimeout {
		return errors.Errorf("%s (%s) must be shorter than %s (%s)",
			EnvBatchTimeout, c.BatchTimeout, EnvToolTimeout, c.ToolTimeout)
	}
	if c.ToolTimeout >= c.SessionTimeout {
		return errors.Errorf("%s (%s) must be shorter than %s (%s)",
			EnvToolTimeout, c.ToolTimeout, EnvSessionTimeout, c.SessionTimeout)
	}
	if c.SweepInterval >= c.SessionTimeout {
		return errors.Errorf("%s (%s) must be shorter than %s (%s)",
			EnvSweepInterval, c.SweepInterval, EnvSessionTimeout, c.SessionTimeout)
	}
	return nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, errors.Wrapf(err, "parsing %s", key)
	}
	return d, nil
}
