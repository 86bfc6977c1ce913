// Package sequence walks backwards through the products of a tile to find
// the batch that precedes a given one.
//
// Within a cycle, products are visited from the highest acquisition group
// down to group 0; group 0 wraps to the highest group of the previous cycle.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/fanout"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// DefaultMaxSteps bounds a single backward search.
const DefaultMaxSteps = 1000

// TileProducts answers which products exist within a tile.
type TileProducts interface {
	HasProduct(id product.ID) bool
	// MaxGroup returns the highest acquisition group of a tile, and false
	// when the tile has no products.
	MaxGroup(tile string) (int, bool)
}

// Navigator finds previous batches within a tile.
type Navigator struct {
	products TileProducts
	maxSteps int
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithMaxSteps sets how many group or cycle decrements a search may take.
// Values below 1 keep the default.
func WithMaxSteps(maxSteps int) Option {
	return func(n *Navigator) {
		if maxSteps > 0 {
			n.maxSteps = maxSteps
		}
	}
}

// NewNavigator creates a Navigator over a catalog or product set.
func NewNavigator(products TileProducts, opts ...Option) *Navigator {
	n := &Navigator{
		products: products,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Previous returns the batch preceding downloadBatchID in its tile.
func (n *Navigator) Previous(downloadBatchID string) (product.Batch, error) {
	b, err := product.ParseDownloadBatchID(downloadBatchID)
	if err != nil {
		return product.Batch{}, err
	}
	return n.previous(downloadBatchID, b)
}

// PreviousID is Previous formatted as a download batch id.
func (n *Navigator) PreviousID(downloadBatchID string) (string, error) {
	b, err := n.Previous(downloadBatchID)
	if err != nil {
		return "", err
	}
	return b.DownloadBatchID(), nil
}

func (n *Navigator) previous(downloadBatchID string, b product.Batch) (product.Batch, error) {
	tile := b.Product.Tile
	maxGroup, ok := n.products.MaxGroup(tile)
	if !ok {
		return product.Batch{}, &NoPreviousProductError{
			DownloadBatchID: downloadBatchID,
			Reason:          fmt.Sprintf("tile %s has no products", tile),
		}
	}

	group, cycle := b.Product.Group, b.Cycle
	for step := 1; step <= n.maxSteps; step++ {
		if group > 0 {
			group--
		} else {
			cycle--
			group = maxGroup
		}
		if cycle < 0 {
			return product.Batch{}, &NoPreviousProductError{
				DownloadBatchID: downloadBatchID,
				Reason:          reasonCycleZero,
				Steps:           step,
			}
		}

		id := product.NewID(tile, group)
		if n.products.HasProduct(id) {
			return product.NewBatch(id, cycle), nil
		}
	}

	return product.Batch{}, &NoPreviousProductError{
		DownloadBatchID: downloadBatchID,
		Reason:          "search limit reached",
		Steps:           n.maxSteps,
	}
}

// PreviousAmong walks back from downloadBatchID and returns the first
// previous batch that one of the candidate granules contributes to. The
// search stops, returning false, once it passes the lowest acquisition
// cycle among the candidates. Malformed candidate ids are skipped.
func (n *Navigator) PreviousAmong(ctx context.Context, bursts fanout.BurstProducts, downloadBatchID string, candidates []string) (string, bool, error) {
	log := logctx.FromContext(ctx)

	granules := make([]granule.Granule, 0, len(candidates))
	for _, id := range candidates {
		g, err := granule.Parse(id)
		if err != nil {
			log.Debug().Err(err).Msg("skipping candidate granule")
			continue
		}
		granules = append(granules, g)
	}

	extended, _ := fanout.Extend(bursts, granules, fanout.ExtendOptions{})
	available := make(map[string]struct{})
	cycles := make([]int, 0, len(extended))
	for _, e := range fanout.Dedupe(extended) {
		available[e.DownloadBatchID] = struct{}{}
		cycles = append(cycles, e.AcquisitionCycle)
	}
	if len(available) == 0 {
		return "", false, nil
	}
	minCycle := slices.Min(cycles)

	current, err := product.ParseDownloadBatchID(downloadBatchID)
	if err != nil {
		return "", false, err
	}
	for {
		prev, err := n.previous(current.DownloadBatchID(), current)
		var npe *NoPreviousProductError
		if errors.As(err, &npe) && npe.Reason == reasonCycleZero {
			// everything before cycle 0 is below minCycle too
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		if prev.Cycle < minCycle {
			return "", false, nil
		}
		if _, ok := available[prev.DownloadBatchID()]; ok {
			return prev.DownloadBatchID(), true, nil
		}
		current = prev
	}
}
