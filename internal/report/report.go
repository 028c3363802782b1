// Package report holds the degrade-to-default policy used by read-only
// reporting paths. Callers that need to tell an empty result from a failed
// one use the (value, error) form; dashboards use OrDefault.
package report

import (
	"context"
	"log/slog"
)

// OrDefault returns v when err is nil, and def otherwise.
// The swallowed error is logged at warn level under op.
func OrDefault[T any](logger *slog.Logger, op string, v T, err error, def T) T {
	if err == nil {
		return v
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, "reporting degraded to default",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return def
}

// Zero is OrDefault with the zero value of T as the fallback.
func Zero[T any](logger *slog.Logger, op string, v T, err error) T {
	var zero T
	return OrDefault(logger, op, v, err, zero)
}
