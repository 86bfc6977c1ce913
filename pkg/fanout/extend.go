// Package fanout expands observed granules into one record per product
// their burst contributes to, and collapses re-processed revisions.
package fanout

import (
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// BurstProducts resolves the products a burst belongs to. Implementations
// must return products in a stable sorted order.
type BurstProducts interface {
	ProductsForBurst(burstID string) []product.ID
}

// Extended is a granule decorated with one product it contributes to.
type Extended struct {
	granule.Granule

	Product         product.ID
	Batch           product.Batch
	BatchID         string
	DownloadBatchID string
	UniqueID        string
}

// TileID returns the tile of the assigned product.
func (e Extended) TileID() string { return e.Product.Tile }

// AcquisitionGroup returns the group of the assigned product.
func (e Extended) AcquisitionGroup() int { return e.Product.Group }

// ExtendOptions controls how granules are assigned to products.
type ExtendOptions struct {
	// DedupeToOneProduct keeps only the first candidate product.
	DedupeToOneProduct bool
	// ForcedProduct, when set, is assigned to every granule regardless of
	// catalog membership.
	ForcedProduct *product.ID
}

// Extend fans granules out over their candidate products. Granules whose
// burst is unknown are dropped and counted in unused.
func Extend(cat BurstProducts, granules []granule.Granule, opts ExtendOptions) (out []Extended, unused int) {
	out = make([]Extended, 0, len(granules))

	for _, g := range granules {
		if opts.ForcedProduct != nil {
			out = append(out, decorate(g, *opts.ForcedProduct))
			continue
		}

		candidates := cat.ProductsForBurst(g.BurstID)
		if len(candidates) == 0 {
			unused++
			continue
		}
		if opts.DedupeToOneProduct {
			candidates = candidates[:1]
		}
		for _, id := range candidates {
			out = append(out, decorate(g, id))
		}
	}

	return out, unused
}

func decorate(g granule.Granule, id product.ID) Extended {
	b := product.NewBatch(id, g.AcquisitionCycle)
	return Extended{
		Granule:         g,
		Product:         id,
		Batch:           b,
		BatchID:         b.String(),
		DownloadBatchID: b.DownloadBatchID(),
		UniqueID:        b.UniqueID(g.BurstID),
	}
}
