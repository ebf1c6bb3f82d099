package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cryguy/winter"
	"github.com/cryguy/winter/internal/bridge"
	"github.com/cryguy/winter/internal/config"
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/logging"
	"github.com/cryguy/winter/internal/metrics"
	"github.com/cryguy/winter/internal/pool"
	"github.com/cryguy/winter/internal/server"
	"github.com/robbyt/go-supervisor/supervisor"
	"github.com/urfave/cli/v3"
)

func engineName() string {
	return winter.NewFactory(core.EngineConfig{}).Name()
}

// prepare resolves configuration and script source and installs the
// process logger.
func prepare(cmd *cli.Command) (config.Config, *config.Source, slog.Handler, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return cfg, nil, nil, &core.StartupError{Op: "loading configuration", Err: err}
	}

	handler, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, cmd.Root().ErrWriter)
	if err != nil {
		return cfg, nil, nil, &core.StartupError{Op: "configuring logging", Err: err}
	}

	src, err := config.ResolveSource(cmd.Args().Slice(), os.LookupEnv, cfg.Bundle)
	if err != nil {
		return cfg, nil, handler, &core.StartupError{Op: "resolving script source", Err: err}
	}
	return cfg, src, handler, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, src, handler, err := prepare(cmd)
	if err != nil {
		return err
	}
	logger := slog.Default()
	logger.Info("starting webserver",
		"version", Version,
		"engine", engineName(),
		"source", src.Origin,
		"workers", cfg.Workers,
	)

	m := metrics.New()
	p, err := winter.NewPool(cfg.Pool(), cfg.Engine(), src.Code,
		pool.WithLogHandler(handler),
		pool.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	b := winter.NewHandler(p,
		bridge.WithLogHandler(handler),
		bridge.WithExposeErrors(cfg.ExposeErrors),
		bridge.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	httpRunner, err := server.NewRunner(cfg.Listen, server.Chain(b, m, cfg.Compress),
		server.WithLogHandler(handler),
		server.WithH2C(cfg.H2C),
		server.WithMaxConns(cfg.MaxConns),
		server.WithDrainTimeout(cfg.ShutdownTimeout),
	)
	if err != nil {
		shutdownPool(p, cfg, logger)
		return fmt.Errorf("failed to create HTTP runner: %w", err)
	}

	// Create a list of runnables to manage
	runnables := []supervisor.Runnable{httpRunner}
	if cfg.MetricsListen != "" {
		admin, err := server.NewAdmin(cfg.MetricsListen, m, poolHealth(p))
		if err != nil {
			shutdownPool(p, cfg, logger)
			return fmt.Errorf("failed to create admin runner: %w", err)
		}
		runnables = append(runnables, admin)
	}

	super, err := supervisor.New(
		supervisor.WithContext(ctx),
		supervisor.WithLogHandler(handler),
		supervisor.WithRunnables(runnables...),
	)
	if err != nil {
		shutdownPool(p, cfg, logger)
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	runErr := super.Run()
	// The listeners have drained; let the workers finish what they hold.
	shutdownPool(p, cfg, logger)
	if runErr != nil {
		return fmt.Errorf("failed to run server: %w", runErr)
	}

	logger.Info("Server shutdown complete")
	return nil
}

func shutdownPool(p *pool.Pool, cfg config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("worker pool did not drain in time", "error", err)
	}
}

func poolHealth(p *pool.Pool) server.HealthFunc {
	return func() error {
		if p.Capacity() == 0 {
			return errors.New("no workers in service")
		}
		return nil
	}
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	cfg, src, _, err := prepare(cmd)
	if err != nil {
		return err
	}

	factory := winter.NewFactory(cfg.Engine())
	sc, err := factory.New(src.Code)
	if err != nil {
		return &core.StartupError{Op: "loading " + src.Origin, Err: err}
	}
	sc.Close()

	fmt.Fprintf(cmd.Root().Writer, "%s: fetch handler registered (%s)\n", src.Origin, factory.Name())
	return nil
}
