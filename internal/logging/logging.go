// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// DebugEnv forces debug level when set to "true".
const DebugEnv = "QUOTAWATCH_DEBUG"

// New builds a logger writing to console and, when cfg.File is set, to
// that file as well. The file is truncated. The returned close func
// releases it.
func New(cfg domain.LoggingConfig, console io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if os.Getenv(DebugEnv) == "true" {
		level = slog.LevelDebug
	}

	out := console
	closer := func() error { return nil }
	if cfg.File != "" {
		f, err := os.Create(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(console, f)
		closer = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		_ = closer()
		return nil, nil, fmt.Errorf("%w: unknown log format %q", domain.ErrInvalidConfiguration, cfg.Format)
	}

	return slog.New(handler), closer, nil
}

// Setup installs the logger as the slog default.
func Setup(cfg domain.LoggingConfig, console io.Writer) (func() error, error) {
	logger, closer, err := New(cfg, console)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", domain.ErrInvalidConfiguration, s)
	}
}
