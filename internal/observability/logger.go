package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the JSON logger used across the service. Records carry
// request_id, trace_id and span_id whenever the context holds them.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewContextHandler(handler))
}
