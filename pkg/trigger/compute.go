// Package trigger decides which DIST-S1 products are complete enough to be
// produced, and runs whole surveys through the catalog, the accumulator and
// the closed-batch ledger.
package trigger

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/fanout"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// ProductBursts reports how many bursts a product needs to be complete.
type ProductBursts interface {
	PossibleBursts(id product.ID) int
}

// Product is the accumulated state of one product at one acquisition cycle.
type Product struct {
	BatchID         string `json:"batch_id"`
	ProductID       string `json:"product_id"`
	TileID          string `json:"tile_id"`
	DownloadBatchID string `json:"download_batch_id"`

	Batch product.Batch `json:"-"`

	PossibleBursts int `json:"possible_bursts"`
	UsedBursts     int `json:"used_bursts"`
	// RTCGranules holds the partial ids of the contributing granules.
	RTCGranules []string `json:"rtc_granules"`

	EarliestAcquisition time.Time `json:"earliest_acquisition"`
	LatestAcquisition   time.Time `json:"latest_acquisition"`
	// EarliestCreation drives the grace period clock.
	EarliestCreation time.Time `json:"earliest_creation"`
	AcquisitionIndex int       `json:"acquisition_index"`

	// Forced is set when the product was kept past its grace period while
	// still incomplete.
	Forced bool `json:"forced,omitempty"`
}

// Complete reports whether every possible burst contributed.
func (p *Product) Complete() bool {
	return p.UsedBursts == p.PossibleBursts
}

// Options controls a Compute call.
type Options struct {
	// CompleteBurstsOnly enforces completeness and the grace period.
	CompleteBurstsOnly bool
	// GracePeriod is how long an incomplete product waits for missing
	// bursts, measured from its earliest contributing granule.
	GracePeriod time.Duration
	// Now is the decision time. It also stands in for unknown ingestion times.
	Now time.Time
	// AllTiles enables untriggered tile tracking when non-nil.
	AllTiles map[string]struct{}
}

// Result is the outcome of a Compute call.
type Result struct {
	// Triggered maps batch id to product.
	Triggered map[string]*Product
	// GranuleFlags maps partial granule id to whether a triggered product
	// consumed it. Empty unless completeness is enforced.
	GranuleFlags map[string]bool
	// UntriggeredTiles is nil unless tiles are tracked.
	UntriggeredTiles map[string]struct{}
	// UnusedGranules counts granules mapped to a tile outside AllTiles.
	UnusedGranules int

	// Held lists incomplete products dropped within their grace period.
	Held []*Product
	// Forced lists incomplete products kept past their grace period.
	Forced []*Product
}

// Compute folds deduplicated granules into per-batch products and applies
// the completeness rule. The outcome does not depend on map iteration order.
func Compute(ctx context.Context, bursts ProductBursts, granules map[fanout.Key]fanout.Extended, opts Options) Result {
	res := Result{
		Triggered:    make(map[string]*Product),
		GranuleFlags: make(map[string]bool),
	}
	if opts.AllTiles != nil {
		res.UntriggeredTiles = maps.Clone(opts.AllTiles)
	}

	for _, g := range granules {
		created := g.IngestedAt
		if created.IsZero() {
			created = opts.Now
		}

		p, ok := res.Triggered[g.BatchID]
		if !ok {
			p = &Product{
				BatchID:             g.BatchID,
				ProductID:           g.Product.String(),
				TileID:              g.Product.Tile,
				DownloadBatchID:     g.DownloadBatchID,
				Batch:               g.Batch,
				EarliestAcquisition: g.Acquisition,
				LatestAcquisition:   g.Acquisition,
				EarliestCreation:    created,
				AcquisitionIndex:    g.AcquisitionCycle,
			}
			res.Triggered[g.BatchID] = p
		}

		p.RTCGranules = append(p.RTCGranules, g.PartialID)
		p.UsedBursts++
		p.PossibleBursts = bursts.PossibleBursts(g.Product)
		if g.Acquisition.Before(p.EarliestAcquisition) {
			p.EarliestAcquisition = g.Acquisition
		}
		if g.Acquisition.After(p.LatestAcquisition) {
			p.LatestAcquisition = g.Acquisition
		}
		if created.Before(p.EarliestCreation) {
			p.EarliestCreation = created
		}

		if opts.AllTiles != nil {
			delete(res.UntriggeredTiles, g.Product.Tile)
			if _, known := opts.AllTiles[g.Product.Tile]; !known {
				res.UnusedGranules++
			}
		}
	}

	for _, p := range res.Triggered {
		slices.Sort(p.RTCGranules)
	}

	if !opts.CompleteBurstsOnly {
		return res
	}

	log := logctx.FromContext(ctx)

	for _, batchID := range slices.Sorted(maps.Keys(res.Triggered)) {
		p := res.Triggered[batchID]

		if p.Complete() {
			for _, id := range p.RTCGranules {
				res.GranuleFlags[id] = true
			}
			continue
		}

		elapsed := opts.Now.Sub(p.EarliestCreation)
		if elapsed < opts.GracePeriod {
			delete(res.Triggered, batchID)
			res.Held = append(res.Held, p)
			for _, id := range p.RTCGranules {
				// A granule consumed by another triggered product stays consumed.
				if !res.GranuleFlags[id] {
					res.GranuleFlags[id] = false
				}
			}
			continue
		}

		// Kept despite being incomplete. Its granules are deliberately left
		// out of GranuleFlags, matching the established trigger behaviour.
		// TODO: flag forced granules true once downstream accounting handles it.
		p.Forced = true
		res.Forced = append(res.Forced, p)
		log.Warn().
			Str("batch_id", batchID).
			Int("used_bursts", p.UsedBursts).
			Int("possible_bursts", p.PossibleBursts).
			Int("missing_bursts", p.PossibleBursts-p.UsedBursts).
			Dur("elapsed", elapsed).
			Msg("incomplete product past grace period, triggering anyway")
	}

	return res
}
