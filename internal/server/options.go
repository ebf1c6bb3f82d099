package server

import (
	"log/slog"
	"time"
)

type Option func(*Runner)

// WithLogger sets a logger for the Runner instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLogHandler sets a custom slog handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("server")
		}
	}
}

// WithName labels the runner in logs and in the supervisor.
func WithName(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.name = name
		}
	}
}

// WithH2C toggles cleartext HTTP/2.
func WithH2C(enabled bool) Option {
	return func(r *Runner) {
		r.h2c = enabled
	}
}

// WithMaxConns caps simultaneously accepted connections. Zero is unlimited.
func WithMaxConns(n int) Option {
	return func(r *Runner) {
		r.maxConns = n
	}
}

// WithDrainTimeout bounds how long Stop waits for open requests.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

// WithReadHeaderTimeout bounds how long a client may take to send headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.readHeaderTimeout = d
		}
	}
}
