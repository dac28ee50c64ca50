// Package log configures the process-wide slog logger. Components take
// a *slog.Logger and tag themselves with a "component" attribute.
package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init sets up the global logger once. Level is one of debug, info,
// warn, error; anything else means info. Output format follows
// PARLEY_LOG_FORMAT ("json" or "text", text by default) so a service
// deployment can switch to machine-readable logs without a rebuild.
func Init(level string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(level)}

		var h slog.Handler
		if strings.EqualFold(os.Getenv("PARLEY_LOG_FORMAT"), "json") {
			h = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			h = slog.NewTextHandler(os.Stderr, opts)
		}

		logger = slog.New(h)
		slog.SetDefault(logger)
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger, initializing at info level if Init was
// never called.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// With returns the global logger with extra attributes attached.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
