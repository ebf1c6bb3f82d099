package server

import (
	"fmt"
	"net/http"

	"github.com/cryguy/winter/internal/metrics"
	"github.com/robbyt/go-supervisor/runnables/httpserver"
)

// HealthFunc reports whether the process can still serve scripts.
type HealthFunc func() error

// NewAdmin builds the admin listener serving /metrics and /healthz. It runs
// under the supervisor next to the script listener.
func NewAdmin(addr string, m *metrics.Metrics, health HealthFunc) (*httpserver.Runner, error) {
	routes, err := AdminRoutes(m, health)
	if err != nil {
		return nil, err
	}

	callback := func() (*httpserver.Config, error) {
		cfg, err := httpserver.NewConfig(addr, routes)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin server config: %w", err)
		}
		return cfg, nil
	}

	runner, err := httpserver.NewRunner(httpserver.WithConfigCallback(callback))
	if err != nil {
		return nil, fmt.Errorf("failed to create admin server runner: %w", err)
	}
	return runner, nil
}

// AdminRoutes returns the admin endpoints.
func AdminRoutes(m *metrics.Metrics, health HealthFunc) ([]httpserver.Route, error) {
	metricsRoute, err := httpserver.NewRouteFromHandlerFunc("metrics", "/metrics", m.Handler().ServeHTTP)
	if err != nil {
		return nil, err
	}
	healthRoute, err := httpserver.NewRouteFromHandlerFunc("healthz", "/healthz", healthHandler(health))
	if err != nil {
		return nil, err
	}
	return []httpserver.Route{*metricsRoute, *healthRoute}, nil
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintln(w, err.Error())
				return
			}
		}
		_, _ = fmt.Fprintln(w, "ok")
	}
}
