package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/cryguy/winter/internal/pool"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a string ("30s", "1m") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// File is the TOML configuration file. Keys left out keep their current
// value when the file is applied.
type File struct {
	Listen        *string `toml:"listen"`
	MetricsListen *string `toml:"metrics_listen"`

	Workers     *int      `toml:"workers"`
	QueueSize   *int      `toml:"queue_size"`
	Timeout     *Duration `toml:"timeout"`
	FaultPolicy *string   `toml:"fault_policy"`

	MemoryLimitMB    *int   `toml:"memory_limit_mb"`
	MaxResponseBytes *int   `toml:"max_response_bytes"`
	MaxBodyBytes     *int64 `toml:"max_body_bytes"`
	MaxConns         *int   `toml:"max_conns"`

	Compress     *bool `toml:"compress"`
	H2C          *bool `toml:"h2c"`
	Bundle       *bool `toml:"bundle"`
	ExposeErrors *bool `toml:"expose_errors"`

	ShutdownTimeout *Duration `toml:"shutdown_timeout"`

	Log struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`

	Vars map[string]string `toml:"vars"`
}

// LoadFile reads and decodes a TOML configuration file. Unknown keys are
// rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes TOML configuration data.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &f, nil
}

// Apply overlays the values set in f onto c.
func (f *File) Apply(c *Config) error {
	setIf(&c.Listen, f.Listen)
	setIf(&c.MetricsListen, f.MetricsListen)
	setIf(&c.Workers, f.Workers)
	setIf(&c.QueueSize, f.QueueSize)
	if f.Timeout != nil {
		c.Timeout = time.Duration(*f.Timeout)
	}
	if f.FaultPolicy != nil {
		p, err := pool.ParseFaultPolicy(*f.FaultPolicy)
		if err != nil {
			return err
		}
		c.FaultPolicy = p
	}
	setIf(&c.MemoryLimitMB, f.MemoryLimitMB)
	setIf(&c.MaxResponseBytes, f.MaxResponseBytes)
	setIf(&c.MaxBodyBytes, f.MaxBodyBytes)
	setIf(&c.MaxConns, f.MaxConns)
	setIf(&c.Compress, f.Compress)
	setIf(&c.H2C, f.H2C)
	setIf(&c.Bundle, f.Bundle)
	setIf(&c.ExposeErrors, f.ExposeErrors)
	if f.ShutdownTimeout != nil {
		c.ShutdownTimeout = time.Duration(*f.ShutdownTimeout)
	}
	setIf(&c.LogLevel, f.Log.Level)
	setIf(&c.LogFormat, f.Log.Format)
	if len(f.Vars) > 0 {
		if c.Vars == nil {
			c.Vars = make(map[string]string, len(f.Vars))
		}
		for k, v := range f.Vars {
			c.Vars[k] = v
		}
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
