// Package survey reads granule survey files: CSV listings of RTC granule ids
// as produced by a catalog query, optionally gzip-compressed.
package survey

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/eunmann/dist-s1-trigger/pkg/granule"
)

// ErrMissingColumn indicates a survey without a granule id column.
var ErrMissingColumn = errors.New("survey missing granule id column")

// IDColumns are the accepted names of the granule id column, in order of preference.
var IDColumns = []string{"granule_id", "native_id", "native-id", "granule"}

// IngestionColumns are the accepted names of the optional ingestion time column.
var IngestionColumns = []string{"creation_timestamp", "ingested_at"}

// Read parses a survey CSV with a header row. Rows with an empty id are skipped.
func Read(r io.Reader) ([]granule.Record, error) {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true

	header, err := csvr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read survey header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	idCol := lookup(cols, IDColumns)
	if idCol < 0 {
		return nil, fmt.Errorf("%w: want one of %s", ErrMissingColumn, strings.Join(IDColumns, ", "))
	}
	ingestCol := lookup(cols, IngestionColumns)

	var records []granule.Record
	for line := 2; ; line++ {
		fields, err := csvr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read survey row: %w", err)
		}
		if len(fields) <= idCol {
			continue
		}
		id := strings.TrimSpace(fields[idCol])
		if id == "" {
			continue
		}

		rec := granule.Record{ID: id}
		if ingestCol >= 0 && ingestCol < len(fields) {
			rec.IngestedAt, err = ParseTime(fields[ingestCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		records = append(records, rec)
	}
}

// ReadFile reads a local survey; a .gz suffix selects gzip decompression.
func ReadFile(path string) ([]granule.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open survey: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gzr.Close()
		src = gzr
	}

	records, err := Read(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseTime accepts RFC 3339 or the granule timestamp form. Blank means unknown.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(granule.TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ingestion time %q", s)
	}
	return t, nil
}

func lookup(cols map[string]int, names []string) int {
	for _, name := range names {
		if idx, ok := cols[name]; ok {
			return idx
		}
	}
	return -1
}
