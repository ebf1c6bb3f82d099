package pool

import (
	"log/slog"

	"github.com/cryguy/winter/internal/metrics"
)

type Option func(*Pool)

// WithLogger sets a logger for the Pool instance.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLogHandler sets a custom slog handler for the Pool instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(p *Pool) {
		if handler != nil {
			p.logger = slog.New(handler).WithGroup("pool")
		}
	}
}

// WithMetrics records pool activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}
