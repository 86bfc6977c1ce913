package survey

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/dist-s1-trigger/pkg/granule"
)

const (
	id1 = "OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231104T044523Z_S1A_30_v1.0"
	id2 = "OPERA_L2_RTC-S1_T020-041121-IW2_20231101T013118Z_20231104T044530Z_S1A_30_v1.0"
)

func TestRead(t *testing.T) {
	input := "\ufeffNative-ID , Creation_Timestamp,extra\n" +
		id1 + ",2023-11-04T05:00:00Z,x\n" +
		"   ,2023-11-04T05:00:00Z,x\n" +
		id2 + ",20231104T060000Z,y\n" +
		"not-a-granule,,z\n"

	records, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []granule.Record{
		{ID: id1, IngestedAt: time.Date(2023, 11, 4, 5, 0, 0, 0, time.UTC)},
		{ID: id2, IngestedAt: time.Date(2023, 11, 4, 6, 0, 0, 0, time.UTC)},
		{ID: "not-a-granule"},
	}, records)
}

func TestRead_IDOnly(t *testing.T) {
	records, err := Read(strings.NewReader("granule_id\n" + id1 + "\n" + id2 + "\n"))
	require.NoError(t, err)
	assert.Equal(t, []granule.Record{{ID: id1}, {ID: id2}}, records)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		is    error
	}{
		{"empty", "", ErrMissingColumn},
		{"no id column", "burst,time\nx,y\n", ErrMissingColumn},
		{"bad time", "granule_id,ingested_at\n" + id1 + ",yesterday\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestReadFile_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("granule\n" + id1 + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "survey.csv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []granule.Record{{ID: id1}}, records)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2023-11-04T07:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 11, 4, 5, 0, 0, 0, time.UTC), got)

	got, err = ParseTime(" ")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
