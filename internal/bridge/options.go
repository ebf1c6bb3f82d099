package bridge

import (
	"log/slog"
	"time"
)

// DefaultMaxBodyBytes caps request bodies read by ServeHTTP.
const DefaultMaxBodyBytes = 10 << 20

type Option func(*Bridge)

// WithLogger sets a logger for the Bridge instance.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLogHandler sets a custom slog handler for the Bridge instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(b *Bridge) {
		if handler != nil {
			b.logger = slog.New(handler).WithGroup("bridge")
		}
	}
}

// WithExposeErrors includes script error messages in 5xx response bodies.
func WithExposeErrors(expose bool) Option {
	return func(b *Bridge) {
		b.exposeErrors = expose
	}
}

// WithMaxBodyBytes limits the request body accepted by ServeHTTP. Zero or
// a negative value removes the limit.
func WithMaxBodyBytes(n int64) Option {
	return func(b *Bridge) {
		b.maxBodyBytes = n
	}
}

// WithRetryAfter sets the Retry-After hint sent with 503 responses.
func WithRetryAfter(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.retryAfter = d
		}
	}
}
