package trigger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/fanout"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/ledger"
	"github.com/eunmann/dist-s1-trigger/pkg/logging"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// DefaultGracePeriod is how long an incomplete product waits by default.
const DefaultGracePeriod = 48 * time.Hour

// Catalog is the subset of the burst catalog a survey run needs.
type Catalog interface {
	fanout.BurstProducts
	ProductBursts
	TileSet() map[string]struct{}
}

// Config controls a survey run.
type Config struct {
	// CompleteBurstsOnly enforces completeness and the grace period.
	CompleteBurstsOnly bool
	// GracePeriod is how long an incomplete product is held back.
	GracePeriod time.Duration
	// TrackTiles reports tiles that no granule contributed to.
	TrackTiles bool
	// DedupeToOneProduct assigns each granule to its first product only.
	DedupeToOneProduct bool
	// ForcedProduct assigns every granule to this product when set.
	ForcedProduct *product.ID
}

// DefaultConfig returns the configuration used by the operational trigger.
func DefaultConfig() Config {
	return Config{
		CompleteBurstsOnly: true,
		GracePeriod:        DefaultGracePeriod,
		TrackTiles:         true,
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.GracePeriod < 0 {
		return fmt.Errorf("GracePeriod must be non-negative, got %s", c.GracePeriod)
	}
	return nil
}

// Engine runs surveys against a loaded catalog. An Engine is safe for
// concurrent use when its ledger is.
type Engine struct {
	cat     Catalog
	cfg     Config
	ledger  ledger.Ledger
	metrics *Metrics
	now     func() time.Time
	runID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger closes triggered batches in l and ignores granules for
// batches l already holds.
func WithLedger(l ledger.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces the wall clock used as the decision time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRunIDs replaces the ULID run id generator.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		e.runID = next
	}
}

// New creates an Engine over cat.
func New(cat Catalog, cfg Config, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, errors.New("trigger: nil catalog")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		cat:   cat,
		cfg:   cfg,
		now:   time.Now,
		runID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run triggers products for one survey of raw granule records. Malformed
// ids and unknown bursts are counted, not fatal. Only ledger failures
// abort the run.
func (e *Engine) Run(ctx context.Context, records []granule.Record) (*Report, error) {
	start := time.Now()
	now := e.now().UTC()
	runID := e.runID()

	ctx = logctx.WithRun(ctx, runID)
	log := logctx.FromContext(ctx)

	counts := Counts{Input: len(records)}

	granules := make([]granule.Granule, 0, len(records))
	for _, rec := range records {
		g, err := granule.ParseRecord(rec)
		if err != nil {
			counts.Malformed++
			log.Debug().Err(err).Msg("skipping granule")
			continue
		}
		granules = append(granules, g)
	}

	extended, unknown := fanout.Extend(e.cat, granules, fanout.ExtendOptions{
		DedupeToOneProduct: e.cfg.DedupeToOneProduct,
		ForcedProduct:      e.cfg.ForcedProduct,
	})
	counts.UnknownBurst = unknown
	deduped := fanout.Dedupe(extended)

	late, err := e.dropClosed(ctx, deduped)
	if err != nil {
		return nil, err
	}
	counts.Late = late

	opts := Options{
		CompleteBurstsOnly: e.cfg.CompleteBurstsOnly,
		GracePeriod:        e.cfg.GracePeriod,
		Now:                now,
	}
	if e.cfg.TrackTiles {
		opts.AllTiles = e.cat.TileSet()
	}
	res := Compute(ctx, e.cat, deduped, opts)

	if err := e.closeTriggered(ctx, runID, now, res.Triggered); err != nil {
		return nil, err
	}

	report := newReport(runID, now, res, counts)
	report.Duration = time.Since(start)
	e.metrics.observe(report)

	logging.RunComplete(log, report.Duration).
		Count("input_granules", counts.Input).
		Count("malformed", counts.Malformed).
		Count("unknown_burst", counts.UnknownBurst).
		Count("late", counts.Late).
		Count("triggered", report.Counts.Triggered).
		Count("forced", report.Counts.Forced).
		Count("held", report.Counts.Held).
		Log("survey complete")

	return report, nil
}

// dropClosed removes granules whose batch the ledger already closed.
func (e *Engine) dropClosed(ctx context.Context, granules map[fanout.Key]fanout.Extended) (int, error) {
	if e.ledger == nil || len(granules) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{})
	for k := range granules {
		seen[k.BatchID] = struct{}{}
	}
	closed, err := e.ledger.Closed(ctx, slices.Sorted(maps.Keys(seen)))
	if err != nil {
		return 0, fmt.Errorf("query ledger: %w", err)
	}
	if len(closed) == 0 {
		return 0, nil
	}

	perBatch := make(map[string]int)
	for k := range granules {
		if _, ok := closed[k.BatchID]; ok {
			delete(granules, k)
			perBatch[k.BatchID]++
		}
	}

	log := logctx.FromContext(ctx)
	late := 0
	for _, batchID := range slices.Sorted(maps.Keys(perBatch)) {
		late += perBatch[batchID]
		log.Info().
			Str("batch_id", batchID).
			Int("granules", perBatch[batchID]).
			Msg("ignoring late granules for closed batch")
	}
	return late, nil
}

func (e *Engine) closeTriggered(ctx context.Context, runID string, now time.Time, triggered map[string]*Product) error {
	if e.ledger == nil || len(triggered) == 0 {
		return nil
	}

	entries := make([]ledger.Entry, 0, len(triggered))
	for _, batchID := range slices.Sorted(maps.Keys(triggered)) {
		p := triggered[batchID]
		entries = append(entries, ledger.Entry{
			BatchID:         p.BatchID,
			DownloadBatchID: p.DownloadBatchID,
			ProductID:       p.ProductID,
			RunID:           runID,
			ClosedAt:        now,
			Forced:          p.Forced,
		})
	}
	if err := e.ledger.Close(ctx, entries); err != nil {
		return fmt.Errorf("close batches in ledger: %w", err)
	}
	return nil
}
