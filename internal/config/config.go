package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/logging"
	"github.com/cryguy/winter/internal/pool"
)

// Config is the complete server configuration. It is built once at startup
// from defaults, an optional TOML file, environment variables and flags, in
// increasing order of precedence, and not modified afterwards.
type Config struct {
	Listen        string
	MetricsListen string

	Workers     int
	QueueSize   int
	Timeout     time.Duration
	FaultPolicy pool.FaultPolicy

	MemoryLimitMB    int
	MaxResponseBytes int
	MaxBodyBytes     int64
	MaxConns         int

	Compress     bool
	H2C          bool
	Bundle       bool
	ExposeErrors bool

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	Vars map[string]string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Listen:          "0.0.0.0:8080",
		Workers:         16,
		QueueSize:       1024,
		Timeout:         30 * time.Second,
		FaultPolicy:     pool.FaultReset,
		MemoryLimitMB:   128,
		MaxBodyBytes:    10 << 20,
		Compress:        true,
		H2C:             true,
		Bundle:          true,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       logging.FormatText,
	}
}

// Validate reports every configuration error at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Pool().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("invalid listen address %q: %w", c.Listen, err))
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			errs = append(errs, fmt.Errorf("invalid metrics listen address %q: %w", c.MetricsListen, err))
		}
		if c.MetricsListen == c.Listen {
			errs = append(errs, errors.New("metrics listen address must differ from the listen address"))
		}
	}
	if c.MemoryLimitMB < 0 {
		errs = append(errs, fmt.Errorf("memory limit must not be negative, got %d", c.MemoryLimitMB))
	}
	if c.MaxResponseBytes < 0 {
		errs = append(errs, fmt.Errorf("max response bytes must not be negative, got %d", c.MaxResponseBytes))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max body bytes must not be negative, got %d", c.MaxBodyBytes))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max connections must not be negative, got %d", c.MaxConns))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout))
	}
	if err := logging.ValidateLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Pool returns the worker pool settings.
func (c Config) Pool() pool.Config {
	return pool.Config{
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		Timeout:     c.Timeout,
		FaultPolicy: c.FaultPolicy,
	}
}

// Engine returns the settings shared by every script context.
func (c Config) Engine() core.EngineConfig {
	return core.EngineConfig{
		MemoryLimitMB:    c.MemoryLimitMB,
		MaxResponseBytes: c.MaxResponseBytes,
		Vars:             maps.Clone(c.Vars),
	}
}
