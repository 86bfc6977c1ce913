package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eunmann/dist-s1-trigger/pkg/logging"
)

//go:embed schema.sql
var sqliteSchema string

// QueryBatchSize is the number of batch ids bound per IN (...) lookup.
// SQLite limits host parameters per statement.
const QueryBatchSize = 500

// Config holds configuration for the SQLite ledger.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
	// Synchronous sets the SQLite synchronous pragma: OFF, NORMAL or FULL.
	Synchronous string
	// BusyTimeout is how long a writer waits on another process's lock.
	BusyTimeout time.Duration
}

// DefaultConfig returns a configuration suitable for a shared ledger file.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:      dbPath,
		Synchronous: "FULL",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks configuration values and returns an error for invalid settings.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DBPath is required")
	}
	switch c.Synchronous {
	case "", "OFF", "NORMAL", "FULL":
	default:
		return fmt.Errorf("invalid Synchronous value %q: must be OFF, NORMAL, or FULL", c.Synchronous)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout must be non-negative, got %s", c.BusyTimeout)
	}
	return nil
}

// SQLite is a ledger stored in a SQLite database file.
type SQLite struct {
	db  *sql.DB
	cfg Config
}

// OpenSQLite creates or opens a ledger database.
func OpenSQLite(cfg Config) (*SQLite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "FULL"
	}

	log := logging.WithPhase("ledger_open")

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers within the process; busy_timeout
	// covers writers in other processes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info().
		Str("db_path", cfg.DBPath).
		Str("synchronous", cfg.Synchronous).
		Msg("opened SQLite ledger")

	return &SQLite{db: db, cfg: cfg}, nil
}

// Closed implements Ledger.
func (s *SQLite) Closed(ctx context.Context, batchIDs []string) (map[string]struct{}, error) {
	closed := make(map[string]struct{})

	for start := 0; start < len(batchIDs); start += QueryBatchSize {
		chunk := batchIDs[start:min(start+QueryBatchSize, len(batchIDs))]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "SELECT batch_id FROM closed_batches WHERE batch_id IN (" + placeholders(len(chunk)) + ")"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query closed batches: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan closed batch: %w", err)
			}
			closed[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate closed batches: %w", err)
		}
	}

	return closed, nil
}

// Close implements Ledger.
func (s *SQLite) Close(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO closed_batches
		(batch_id, download_batch_id, product_id, run_id, forced, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.BatchID, e.DownloadBatchID, e.ProductID, e.RunID, e.Forced,
			e.ClosedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert closed batch %s: %w", e.BatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Entry returns the recorded entry for a batch.
func (s *SQLite) Entry(ctx context.Context, batchID string) (Entry, bool, error) {
	var (
		e        Entry
		closedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT batch_id, download_batch_id, product_id, run_id, forced, closed_at
		FROM closed_batches WHERE batch_id = ?`, batchID).
		Scan(&e.BatchID, &e.DownloadBatchID, &e.ProductID, &e.RunID, &e.Forced, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get closed batch: %w", err)
	}
	e.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("parse closed_at %q: %w", closedAt, err)
	}
	return e, true, nil
}

// Count returns the number of closed batches.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM closed_batches").Scan(&n); err != nil {
		return 0, fmt.Errorf("count closed batches: %w", err)
	}
	return n, nil
}

// Shutdown closes the database connection.
func (s *SQLite) Shutdown() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
