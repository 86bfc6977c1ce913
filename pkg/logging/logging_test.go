package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), buf.String())
	return got
}

func TestInitWriter(t *testing.T) {
	defer Init(false, false)

	var buf bytes.Buffer
	InitWriter(&buf, false, false)
	assert.False(t, IsPrettyMode())
	L().Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	InitWriter(&buf, true, false)
	L().Debug().Msg("shown")
	assert.Equal(t, "shown", decodeLine(t, &buf)["message"])

	InitWriter(&buf, false, true)
	assert.True(t, IsPrettyMode())
}

func TestWithPhase(t *testing.T) {
	defer Init(false, false)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	log := WithPhase("ledger_open")
	log.Info().Msg("opened")

	assert.Equal(t, "ledger_open", decodeLine(t, &buf)["phase"])
}

func TestCompletionEvent_Fields(t *testing.T) {
	var buf bytes.Buffer

	PhaseComplete(zerolog.New(&buf), "load_catalog", 1500*time.Millisecond).
		Str("cache", "burstdb-0123.ds1c").
		Bool("from_cache", true).
		Count("rows", 1234567).
		Bytes("size", 2048).
		Log("catalog loaded")

	got := decodeLine(t, &buf)
	assert.Equal(t, EventPhaseCompleted, got["event"])
	assert.Equal(t, "load_catalog", got["phase"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Equal(t, "burstdb-0123.ds1c", got["cache"])
	assert.Equal(t, true, got["from_cache"])
	assert.Equal(t, float64(1234567), got["rows"])
	assert.Equal(t, float64(2048), got["size"])
	assert.NotContains(t, got, "rows_h")
}

func TestCompletionEvent_PrettyCompanions(t *testing.T) {
	var sink bytes.Buffer
	InitWriter(&sink, false, true)
	defer Init(false, false)

	var buf bytes.Buffer
	SourceFetched(zerolog.New(&buf), time.Second).
		Count("rows", 1234567).
		Bytes("bytes", 2048).
		Log("downloaded reference table")

	got := decodeLine(t, &buf)
	assert.Equal(t, EventSourceFetched, got["event"])
	assert.Equal(t, "1,234,567", got["rows_h"])
	assert.Equal(t, "2.0 kB", got["bytes_h"])
	assert.Equal(t, "1s", got["duration_h"])
}

func TestRunComplete(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).With().Str("run_id", "01J").Logger()

	RunComplete(log, 10*time.Millisecond).Count("triggered", 2).Log("survey complete")

	got := decodeLine(t, &buf)
	assert.Equal(t, EventRunCompleted, got["event"])
	assert.Equal(t, "survey", got["phase"])
	assert.Equal(t, "01J", got["run_id"])
	assert.Equal(t, float64(2), got["triggered"])
}
