package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Every record carries the service name
// and the environment so console and worker logs can share a sink.
func NewLogger(cfg *Config, service string) *slog.Logger {
	return newLogger(os.Stdout, cfg, service)
}

func newLogger(w io.Writer, cfg *Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: parseLevel(cfg)}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	env := ""
	if cfg != nil {
		env = cfg.AppEnv
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(w, opts)
		}
	}
	return slog.New(handler).With(slog.String("service", service), slog.String("env", env))
}

func parseLevel(cfg *Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		if strings.EqualFold(cfg.LogLevel, "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return level
}
