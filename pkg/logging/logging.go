// Package logging holds the process-wide zerolog logger and the completion
// events emitted at the end of catalog loads, source fetches and survey runs.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger atomic.Pointer[zerolog.Logger]
	human  atomic.Bool
)

func init() {
	SetLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger on stderr.
func Init(debug, humanOutput bool) {
	InitWriter(os.Stderr, debug, humanOutput)
}

// InitWriter configures the global logger. debug lowers the level to Debug;
// humanOutput switches to a console writer and adds readable companions to
// counts and durations in completion events.
func InitWriter(w io.Writer, debug, humanOutput bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	human.Store(humanOutput)

	out := w
	if humanOutput {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	SetLogger(zerolog.New(out).With().Timestamp().Logger())
}

// IsPrettyMode reports whether human-readable output was requested.
func IsPrettyMode() bool {
	return human.Load()
}

// L returns the global logger.
func L() *zerolog.Logger {
	return logger.Load()
}

// WithPhase returns the global logger tagged with a phase.
func WithPhase(phase string) zerolog.Logger {
	return L().With().Str("phase", phase).Logger()
}

// SetLogger replaces the global logger.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}
