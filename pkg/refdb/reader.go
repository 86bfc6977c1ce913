// Package refdb reads the DIST-S1 burst reference table, which relates MGRS
// tiles, acquisition groups and JPL burst ids.
package refdb

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eunmann/dist-s1-trigger/pkg/granule"
)

// Required column names.
const (
	ColumnTileID   = "mgrs_tile_id"
	ColumnAcqGroup = "acq_group_id_within_mgrs_tile"
	ColumnBurstID  = "jpl_burst_id"
)

var (
	// ErrMissingColumn indicates the table lacks one of the required columns.
	ErrMissingColumn = errors.New("reference table missing required column")
	// ErrUnsupportedFormat indicates a file extension that no reader handles.
	ErrUnsupportedFormat = errors.New("unsupported reference table format")
)

// Row is one (tile, acquisition group, burst) relation.
type Row struct {
	TileID   string
	AcqGroup int
	BurstID  string
}

// Reader is the unified interface for reading the reference table.
// Implementations exist for CSV and Parquet.
type Reader interface {
	// Next returns the next row. Returns io.EOF when all rows have been read.
	Next() (Row, error)

	// Close releases resources associated with the reader.
	Close() error
}

// Format is a reference table file format.
type Format int

const (
	FormatCSV Format = iota
	FormatParquet
)

// DetectFormat picks the format from the file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet, nil
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".csv.gz"):
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// OpenFile opens a local reference table, choosing the reader by extension.
func OpenFile(path string) (Reader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference table: %w", err)
	}

	if format == FormatParquet {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat reference table: %w", err)
		}
		r, err := NewParquetReader(f, info.Size())
		if err != nil {
			f.Close()
			return nil, err
		}
		r.closer = f
		return r, nil
	}

	var src io.Reader = f
	closers := []io.Closer{f}
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		src = gzr
	}

	r, err := NewCSVReader(src)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	r.closers = closers
	return r, nil
}

// ReadAll drains a reader.
func ReadAll(r Reader) ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// ReadFile opens, reads and closes a local reference table.
func ReadFile(path string) ([]Row, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ReadAll(r)
}

func newRow(tile string, group int64, burst string) Row {
	return Row{
		TileID:   strings.TrimSpace(tile),
		AcqGroup: int(group),
		BurstID:  granule.NormalizeBurstID(burst),
	}
}

func closeAll(closers []io.Closer) error {
	var firstErr error
	// Close in reverse order (gzip reader before underlying file)
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
