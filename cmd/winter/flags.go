package main

import (
	"fmt"
	"maps"

	"github.com/cryguy/winter/internal/config"
	"github.com/cryguy/winter/internal/pool"
	"github.com/urfave/cli/v3"
)

func flags() []cli.Flag {
	d := config.Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to TOML configuration file",
			Sources: cli.EnvVars("WINTER_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "Address to serve the script on",
			Value:   d.Listen,
			Sources: cli.EnvVars("WINTER_LISTEN"),
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "Address for /metrics and /healthz (disabled when empty)",
			Sources: cli.EnvVars("WINTER_METRICS_LISTEN"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of script workers, the ceiling on concurrent executions",
			Value:   d.Workers,
			Sources: cli.EnvVars("WINTER_WORKERS"),
		},
		&cli.IntFlag{
			Name:    "queue-size",
			Usage:   "Requests that may wait for a free worker before new ones get 503",
			Value:   d.QueueSize,
			Sources: cli.EnvVars("WINTER_QUEUE_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Maximum execution time per request, 0 disables",
			Value:   d.Timeout,
			Sources: cli.EnvVars("WINTER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "fault-policy",
			Usage:   "What a worker does after an engine fault or timeout: reset or stop",
			Value:   string(d.FaultPolicy),
			Sources: cli.EnvVars("WINTER_FAULT_POLICY"),
		},
		&cli.IntFlag{
			Name:    "memory-limit-mb",
			Usage:   "Memory limit per script context in MiB, 0 for the engine default",
			Value:   d.MemoryLimitMB,
			Sources: cli.EnvVars("WINTER_MEMORY_LIMIT_MB"),
		},
		&cli.IntFlag{
			Name:    "max-response-bytes",
			Usage:   "Largest response body a script may return, 0 is unlimited",
			Sources: cli.EnvVars("WINTER_MAX_RESPONSE_BYTES"),
		},
		&cli.IntFlag{
			Name:    "max-body-bytes",
			Usage:   "Largest request body accepted, larger requests get 413",
			Value:   int(d.MaxBodyBytes),
			Sources: cli.EnvVars("WINTER_MAX_BODY_BYTES"),
		},
		&cli.IntFlag{
			Name:    "max-conns",
			Usage:   "Maximum simultaneous connections, 0 is unlimited",
			Sources: cli.EnvVars("WINTER_MAX_CONNS"),
		},
		&cli.BoolFlag{
			Name:    "compress",
			Usage:   "Negotiate brotli or gzip response compression",
			Value:   d.Compress,
			Sources: cli.EnvVars("WINTER_COMPRESS"),
		},
		&cli.BoolFlag{
			Name:    "h2c",
			Usage:   "Accept cleartext HTTP/2",
			Value:   d.H2C,
			Sources: cli.EnvVars("WINTER_H2C"),
		},
		&cli.BoolFlag{
			Name:    "bundle",
			Usage:   "Bundle a script file that imports other modules",
			Value:   d.Bundle,
			Sources: cli.EnvVars("WINTER_BUNDLE"),
		},
		&cli.BoolFlag{
			Name:    "expose-errors",
			Usage:   "Include script error messages in 5xx responses",
			Sources: cli.EnvVars("WINTER_EXPOSE_ERRORS"),
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "How long to drain requests and workers on shutdown",
			Value:   d.ShutdownTimeout,
			Sources: cli.EnvVars("WINTER_SHUTDOWN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: trace, debug, info, warn or error",
			Value:   d.LogLevel,
			Sources: cli.EnvVars("WINTER_LOG"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format: text or json",
			Value:   d.LogFormat,
			Sources: cli.EnvVars("WINTER_LOG_FORMAT"),
		},
		&cli.StringMapFlag{
			Name:  "var",
			Usage: "Variable exposed to the script as env.KEY (KEY=VALUE, repeatable)",
		},
	}
}

// buildConfig layers defaults, the TOML file, then environment variables
// and flags.
func buildConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := cmd.String("config"); path != "" {
		f, err := config.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := f.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("applying %s: %w", path, err)
		}
	}

	if cmd.IsSet("listen") {
		cfg.Listen = cmd.String("listen")
	}
	if cmd.IsSet("metrics-listen") {
		cfg.MetricsListen = cmd.String("metrics-listen")
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("queue-size") {
		cfg.QueueSize = cmd.Int("queue-size")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("fault-policy") {
		p, err := pool.ParseFaultPolicy(cmd.String("fault-policy"))
		if err != nil {
			return cfg, err
		}
		cfg.FaultPolicy = p
	}
	if cmd.IsSet("memory-limit-mb") {
		cfg.MemoryLimitMB = cmd.Int("memory-limit-mb")
	}
	if cmd.IsSet("max-response-bytes") {
		cfg.MaxResponseBytes = cmd.Int("max-response-bytes")
	}
	if cmd.IsSet("max-body-bytes") {
		cfg.MaxBodyBytes = int64(cmd.Int("max-body-bytes"))
	}
	if cmd.IsSet("max-conns") {
		cfg.MaxConns = cmd.Int("max-conns")
	}
	if cmd.IsSet("compress") {
		cfg.Compress = cmd.Bool("compress")
	}
	if cmd.IsSet("h2c") {
		cfg.H2C = cmd.Bool("h2c")
	}
	if cmd.IsSet("bundle") {
		cfg.Bundle = cmd.Bool("bundle")
	}
	if cmd.IsSet("expose-errors") {
		cfg.ExposeErrors = cmd.Bool("expose-errors")
	}
	if cmd.IsSet("shutdown-timeout") {
		cfg.ShutdownTimeout = cmd.Duration("shutdown-timeout")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if vars := cmd.StringMap("var"); len(vars) > 0 {
		if cfg.Vars == nil {
			cfg.Vars = make(map[string]string, len(vars))
		}
		maps.Copy(cfg.Vars, vars)
	}

	return cfg, cfg.Validate()
}
