package logger

import (
	"log/slog"
	"os"
)

// New returns the application logger. JSON output so log aggregation can
// index fields without extra parsing.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
