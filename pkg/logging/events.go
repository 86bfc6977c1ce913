package logging

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Event names carried in the "event" field.
const (
	EventPhaseCompleted = "phase_completed"
	EventSourceFetched  = "source_fetched"
	EventRunCompleted   = "run_completed"
)

// CompletionEvent collects fields for one completion log line. Fields are
// emitted in the order they were first set.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	keys    []string
	values  map[string]any
}

func newCompletion(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{log: log, event: event, phase: phase, elapsed: elapsed, values: map[string]any{}}
}

// PhaseComplete starts an event for a finished processing phase.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return newCompletion(log, EventPhaseCompleted, phase, elapsed)
}

// SourceFetched starts an event for a reference table mirrored from S3.
func SourceFetched(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return newCompletion(log, EventSourceFetched, "fetch", elapsed)
}

// RunComplete starts an event for a finished survey run. log is expected
// to carry the run id.
func RunComplete(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return newCompletion(log, EventRunCompleted, "survey", elapsed)
}

func (ce *CompletionEvent) set(key string, val any) *CompletionEvent {
	if _, ok := ce.values[key]; !ok {
		ce.keys = append(ce.keys, key)
	}
	ce.values[key] = val
	return ce
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	return ce.set(key, val)
}

// Bool adds a bool field.
func (ce *CompletionEvent) Bool(key string, val bool) *CompletionEvent {
	return ce.set(key, val)
}

// Count adds a count, with a comma-grouped companion in pretty mode.
func (ce *CompletionEvent) Count(key string, n int) *CompletionEvent {
	ce.set(key, n)
	if IsPrettyMode() {
		ce.set(key+"_h", humanize.Comma(int64(n)))
	}
	return ce
}

// Bytes adds a byte size, with an SI companion in pretty mode.
func (ce *CompletionEvent) Bytes(key string, n int64) *CompletionEvent {
	ce.set(key, n)
	if IsPrettyMode() && n >= 0 {
		ce.set(key+"_h", humanize.Bytes(uint64(n)))
	}
	return ce
}

// Log emits the event at info level.
func (ce *CompletionEvent) Log(msg string) {
	e := ce.log.Info().
		Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", ce.elapsed.Round(time.Millisecond).String())
	}
	for _, k := range ce.keys {
		e = e.Interface(k, ce.values[k])
	}
	e.Msg(msg)
}
