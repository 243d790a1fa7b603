package logging

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog logger for a service. Level comes
// from the LOG_LEVEL env var (debug/info/warn/error), defaulting to info.
func SetupLogger(serviceName string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
