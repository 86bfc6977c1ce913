// Package pgledger provides a PostgreSQL implementation of ledger.Ledger,
// for deployments where several hosts trigger against the same catalog.
package pgledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eunmann/dist-s1-trigger/pkg/ledger"
)

var tracer = otel.Tracer("github.com/eunmann/dist-s1-trigger/pkg/ledger/pgledger")

//go:embed schema.sql
var schema string

var _ ledger.Ledger = (*Store)(nil)

// Store persists closed batches in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Shutdown closes the connection pool.
func (s *Store) Shutdown() {
	s.pool.Close()
}

// Closed implements ledger.Ledger.
func (s *Store) Closed(ctx context.Context, batchIDs []string) (map[string]struct{}, error) {
	ctx, span := tracer.Start(ctx, "pgledger.Closed", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.Int("batch_ids", len(batchIDs)),
	))
	defer span.End()

	closed := make(map[string]struct{})
	if len(batchIDs) == 0 {
		return closed, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT batch_id FROM closed_batches WHERE batch_id = ANY($1)`, batchIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query closed batches: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("collect closed batches: %w", err)
	}
	for _, id := range ids {
		closed[id] = struct{}{}
	}
	return closed, nil
}

// Close implements ledger.Ledger.
func (s *Store) Close(ctx context.Context, entries []ledger.Entry) error {
	ctx, span := tracer.Start(ctx, "pgledger.Close", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.Int("entries", len(entries)),
	))
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO closed_batches
			(batch_id, download_batch_id, product_id, run_id, forced, closed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (batch_id) DO NOTHING`,
			e.BatchID, e.DownloadBatchID, e.ProductID, e.RunID, e.Forced, e.ClosedAt)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert closed batches: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Entry returns the recorded entry for a batch.
func (s *Store) Entry(ctx context.Context, batchID string) (ledger.Entry, bool, error) {
	ctx, span := tracer.Start(ctx, "pgledger.Entry", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var e ledger.Entry
	err := s.pool.QueryRow(ctx, `SELECT batch_id, download_batch_id, product_id, run_id, forced, closed_at
		FROM closed_batches WHERE batch_id = $1`, batchID).
		Scan(&e.BatchID, &e.DownloadBatchID, &e.ProductID, &e.RunID, &e.Forced, &e.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.Entry{}, false, fmt.Errorf("get closed batch: %w", err)
	}
	return e, true, nil
}
