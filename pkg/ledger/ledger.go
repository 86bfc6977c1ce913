// Package ledger records which batches have already been triggered, so that
// granules arriving after a batch was closed do not re-open it.
package ledger

import (
	"context"
	"time"
)

// Entry is one closed batch.
type Entry struct {
	BatchID         string
	DownloadBatchID string
	ProductID       string
	RunID           string
	ClosedAt        time.Time
	Forced          bool
}

// Ledger is a persistent set of closed batch ids.
// Implementations are safe for concurrent use.
type Ledger interface {
	// Closed returns the subset of batchIDs that are already closed.
	Closed(ctx context.Context, batchIDs []string) (map[string]struct{}, error)
	// Close marks batches closed. Closing an already closed batch is a no-op,
	// and the first entry recorded for a batch is kept.
	Close(ctx context.Context, entries []Entry) error
}

// Verify interface compliance at compile time.
var (
	_ Ledger = (*Memory)(nil)
	_ Ledger = (*SQLite)(nil)
)
