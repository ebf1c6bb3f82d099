package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Formats accepted by NewHandler.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidateLevel reports whether level is one the handlers understand.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q (want trace, debug, info, warn or error)", level)
	}
}

// NewHandler builds the process log handler for format and level.
func NewHandler(format, level string, writer io.Writer) (slog.Handler, error) {
	if err := ValidateLevel(level); err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatText:
		return SetupHandlerText(level, writer), nil
	case FormatJSON:
		return SetupHandlerJSON(level, writer), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

// SetupHandlerText configures a text slog handler with the provided writer and log level
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}

	reportCaller := false
	reportTimestamp := true
	lvl := log.InfoLevel
	switch strings.ToLower(logLevel) {
	case "trace":
		reportCaller = true
		lvl = log.DebugLevel
	case "debug":
		lvl = log.DebugLevel
	case "info":
		lvl = log.InfoLevel
	case "warn", "warning":
		lvl = log.WarnLevel
	case "error":
		lvl = log.ErrorLevel
	}

	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: reportTimestamp,
		ReportCaller:    reportCaller,
		Level:           lvl,
	})
}

// SetupHandlerJSON configures a JSON slog handler with the provided writer and log level
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stdout
	}

	reportCaller := false
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "trace":
		reportCaller = true
		level = slog.LevelDebug
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     level,
		AddSource: reportCaller,
	})
}

// Setup installs the handler as the slog default and returns it.
func Setup(format, level string, writer io.Writer) (slog.Handler, error) {
	h, err := NewHandler(format, level, writer)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(h))
	return h, nil
}
