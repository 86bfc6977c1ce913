package refdb

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// parquetReader reads reference rows from a Parquet file.
// It streams by iterating through row groups.
type parquetReader struct {
	file     *parquet.File
	tileCol  int
	groupCol int
	burstCol int
	closer   io.Closer

	// Row group iteration state
	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

// NewParquetReader opens a Parquet reference table from an io.ReaderAt.
func NewParquetReader(r io.ReaderAt, size int64) (*parquetReader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	pr := &parquetReader{
		file:         file,
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 1024),
	}

	schema := file.Schema()
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{ColumnTileID, &pr.tileCol},
		{ColumnAcqGroup, &pr.groupCol},
		{ColumnBurstID, &pr.burstCol},
	} {
		leaf, ok := schema.Lookup(c.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c.name)
		}
		*c.dst = leaf.ColumnIndex
	}

	return pr, nil
}

// Next returns the next reference row.
func (r *parquetReader) Next() (Row, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.rowBuf[r.bufIdx]
			r.bufIdx++
			out, ok, err := r.convert(row)
			if err != nil {
				return Row{}, err
			}
			if !ok {
				continue
			}
			return out, nil
		}

		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return Row{}, fmt.Errorf("read parquet rows: %w", err)
			}
			// Current row group exhausted
			r.currentRows.Close()
			r.currentRows = nil
		}

		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return Row{}, io.EOF
		}
		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

// convert maps a parquet.Row onto a Row. Rows with an empty tile or burst
// are skipped.
func (r *parquetReader) convert(row parquet.Row) (Row, bool, error) {
	var (
		tile, burst string
		group       int64 = -1
	)

	for _, val := range row {
		if val.IsNull() {
			continue
		}
		switch val.Column() {
		case r.tileCol:
			tile = val.String()
		case r.burstCol:
			burst = val.String()
		case r.groupCol:
			g, err := groupValue(val)
			if err != nil {
				return Row{}, false, err
			}
			group = g
		}
	}

	if strings.TrimSpace(tile) == "" || strings.TrimSpace(burst) == "" {
		return Row{}, false, nil
	}
	if group < 0 {
		return Row{}, false, fmt.Errorf("tile %s burst %s: missing %s", tile, burst, ColumnAcqGroup)
	}
	return newRow(tile, group, burst), true, nil
}

func groupValue(val parquet.Value) (int64, error) {
	switch val.Kind() {
	case parquet.Int32:
		return int64(val.Int32()), nil
	case parquet.Int64:
		return val.Int64(), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		g, err := strconv.ParseInt(strings.TrimSpace(val.String()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", ColumnAcqGroup, val.String())
		}
		return g, nil
	default:
		return 0, fmt.Errorf("unsupported %s type %s", ColumnAcqGroup, val.Kind())
	}
}

// Close releases resources.
func (r *parquetReader) Close() error {
	if r.currentRows != nil {
		r.currentRows.Close()
		r.currentRows = nil
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
