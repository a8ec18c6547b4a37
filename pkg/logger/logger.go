// Package logger configures the process-wide slog logger for the
// authentication service.
package logger

import (
	"io"
	"log/slog"
	"os"
)

const serviceName = "casd"

// New builds a logger for the given environment writing to w. Production
// emits JSON at info level for log shippers; anything else is
// human-readable text at debug level. Every record carries the service
// attribute so ticket-flow logs can be told apart from co-located
// processes.
func New(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", serviceName))
}

// Setup builds the logger for env on stdout and installs it as the
// process default.
func Setup(env string) *slog.Logger {
	logger := New(env, os.Stdout)
	slog.SetDefault(logger)
	return logger
}
