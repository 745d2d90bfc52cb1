// Package log wraps log/slog with a component field and the structured
// field names used across the service.
package log

import (
	"log/slog"
	"os"
)

// Config holds logger configuration.
type Config struct {
	Level   slog.Level
	Handler slog.Handler
}

// New builds an slog logger; a nil Handler falls back to a text handler
// on stdout at the configured level.
func New(config Config) *slog.Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	return slog.New(handler)
}

// Setup installs the default logger for the process.
func Setup(config Config) *slog.Logger {
	logger := New(config)
	slog.SetDefault(logger)
	return logger
}
