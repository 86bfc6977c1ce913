// Package logctx carries a zerolog logger through context.Context so that
// fields such as run_id or phase follow a survey run into the catalog
// loader, the ledger and the accumulator.
//
//	ctx = logctx.WithLogger(ctx, base)
//	ctx = logctx.WithRun(ctx, runID)
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eunmann/dist-s1-trigger/pkg/logging"
)

type loggerKey struct{}

// DefaultLogger returns the process-wide logger configured by logging.Init.
func DefaultLogger() zerolog.Logger {
	return *logging.L()
}

// WithLogger attaches logger to ctx. A nil ctx is treated as Background.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or DefaultLogger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return DefaultLogger()
}

// WithStr adds a string field to the logger in ctx.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithRun tags every log line of a survey run with its id.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithStr(ctx, "run_id", runID)
}
