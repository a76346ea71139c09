// Package logging configures the default slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer // defaults to os.Stderr
}

// ParseConfig builds a Config from the --log-level and --log-format values.
func ParseConfig(level, format string) (Config, error) {
	cfg := Config{Level: ParseLevel(level), Output: os.Stderr}
	switch strings.ToLower(format) {
	case "", "text":
	case "json":
		cfg.JSON = true
	default:
		return Config{}, fmt.Errorf("unknown log format %q, want text or json", format)
	}
	return cfg, nil
}

// ParseLevel converts a level name to slog.Level. Unknown names mean INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a logger built from cfg as the slog default and returns it.
func Setup(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
