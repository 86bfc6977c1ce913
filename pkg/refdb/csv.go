package refdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvReader reads reference rows from CSV with a header row.
type csvReader struct {
	csvReader *csv.Reader
	tileCol   int
	groupCol  int
	burstCol  int
	line      int
	closers   []io.Closer
}

// NewCSVReader reads the header row and locates the required columns.
// Header matching is case-insensitive and ignores surrounding whitespace.
func NewCSVReader(r io.Reader) (*csvReader, error) {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1 // Variable field count
	csvr.LazyQuotes = true

	header, err := csvr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	r2 := &csvReader{csvReader: csvr, line: 1}
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{ColumnTileID, &r2.tileCol},
		{ColumnAcqGroup, &r2.groupCol},
		{ColumnBurstID, &r2.burstCol},
	} {
		idx, ok := cols[c.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c.name)
		}
		*c.dst = idx
	}

	return r2, nil
}

// Next returns the next reference row.
func (r *csvReader) Next() (Row, error) {
	for {
		fields, err := r.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read CSV row: %w", err)
		}
		r.line++

		maxCol := max(r.tileCol, r.groupCol, r.burstCol)
		if len(fields) <= maxCol {
			continue
		}

		tile := strings.TrimSpace(fields[r.tileCol])
		burst := strings.TrimSpace(fields[r.burstCol])
		if tile == "" || burst == "" {
			continue
		}

		group, err := strconv.ParseInt(strings.TrimSpace(fields[r.groupCol]), 10, 64)
		if err != nil || group < 0 {
			return Row{}, fmt.Errorf("line %d: invalid %s %q", r.line, ColumnAcqGroup, fields[r.groupCol])
		}

		return newRow(tile, group, burst), nil
	}
}

// Close releases resources.
func (r *csvReader) Close() error {
	return closeAll(r.closers)
}
