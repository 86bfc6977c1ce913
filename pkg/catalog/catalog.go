// Package catalog holds the static burst/product/tile relation that every
// triggering decision is made against.
package catalog

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/eunmann/dist-s1-trigger/pkg/format"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
	"github.com/eunmann/dist-s1-trigger/pkg/refdb"
)

// Catalog is the immutable burst reference relation with its derived
// indexes. It is safe for concurrent use once built.
type Catalog struct {
	rows []refdb.Row // distinct, sorted

	tileProducts  map[string][]product.ID
	productBursts map[product.ID][]string
	tiles         map[string]struct{}
	tileList      []string
	maxGroup      map[string]int

	// burstProducts[pos] holds the products of the burst at that index position.
	burstIndex    *format.KeyIndex
	burstProducts [][]product.ID
}

// Stats summarizes a catalog.
type Stats struct {
	Rows     int `json:"rows"`
	Tiles    int `json:"tiles"`
	Products int `json:"products"`
	Bursts   int `json:"bursts"`
}

// Build derives all indexes from reference rows in one pass. Duplicate rows
// are collapsed.
func Build(rows []refdb.Row) (*Catalog, error) {
	burstSet := make(map[string]struct{})
	for _, r := range rows {
		burstSet[r.BurstID] = struct{}{}
	}

	idx, err := format.BuildKeyIndex(slices.Sorted(maps.Keys(burstSet)))
	if err != nil {
		return nil, fmt.Errorf("index bursts: %w", err)
	}
	return assemble(rows, idx)
}

// FromSnapshot restores a catalog from its cached form.
func FromSnapshot(s format.Snapshot) (*Catalog, error) {
	return assemble(s.Rows, s.Index)
}

func assemble(rows []refdb.Row, idx *format.KeyIndex) (*Catalog, error) {
	c := &Catalog{
		tileProducts:  make(map[string][]product.ID),
		productBursts: make(map[product.ID][]string),
		tiles:         make(map[string]struct{}),
		maxGroup:      make(map[string]int),
		burstIndex:    idx,
		burstProducts: make([][]product.ID, idx.Len()),
	}

	seen := make(map[refdb.Row]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		c.rows = append(c.rows, r)

		pos, ok := idx.Lookup(r.BurstID)
		if !ok {
			return nil, fmt.Errorf("burst %s missing from index", r.BurstID)
		}

		id := product.NewID(r.TileID, r.AcqGroup)
		if _, known := c.productBursts[id]; !known {
			c.tileProducts[r.TileID] = append(c.tileProducts[r.TileID], id)
		}
		c.productBursts[id] = append(c.productBursts[id], r.BurstID)
		c.burstProducts[pos] = append(c.burstProducts[pos], id)

		c.tiles[r.TileID] = struct{}{}
		if g, ok := c.maxGroup[r.TileID]; !ok || r.AcqGroup > g {
			c.maxGroup[r.TileID] = r.AcqGroup
		}
	}

	byID := func(a, b product.ID) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	}
	for _, ids := range c.tileProducts {
		slices.SortFunc(ids, byID)
	}
	for _, bursts := range c.productBursts {
		slices.Sort(bursts)
	}
	for _, ids := range c.burstProducts {
		slices.SortFunc(ids, byID)
	}
	slices.SortFunc(c.rows, func(a, b refdb.Row) int {
		return cmp.Or(
			cmp.Compare(a.TileID, b.TileID),
			cmp.Compare(a.AcqGroup, b.AcqGroup),
			cmp.Compare(a.BurstID, b.BurstID),
		)
	})
	c.tileList = slices.Sorted(maps.Keys(c.tiles))

	return c, nil
}

// ProductsForBurst returns the products a burst belongs to, sorted. The
// slice must not be modified.
func (c *Catalog) ProductsForBurst(burstID string) []product.ID {
	pos, ok := c.burstIndex.Lookup(burstID)
	if !ok {
		return nil
	}
	return c.burstProducts[pos]
}

// BurstsForProduct returns the constituent bursts of a product, sorted. The
// slice must not be modified.
func (c *Catalog) BurstsForProduct(id product.ID) []string {
	return c.productBursts[id]
}

// PossibleBursts returns the number of bursts a product needs to be complete.
func (c *Catalog) PossibleBursts(id product.ID) int {
	return len(c.productBursts[id])
}

// HasProduct reports whether the product exists in the catalog.
func (c *Catalog) HasProduct(id product.ID) bool {
	_, ok := c.productBursts[id]
	return ok
}

// TileProducts returns the products of a tile ordered by group.
func (c *Catalog) TileProducts(tile string) []product.ID {
	return c.tileProducts[tile]
}

// MaxGroup returns the highest acquisition group of a tile.
func (c *Catalog) MaxGroup(tile string) (int, bool) {
	g, ok := c.maxGroup[tile]
	return g, ok
}

// HasTile reports whether the tile exists in the catalog.
func (c *Catalog) HasTile(tile string) bool {
	_, ok := c.tiles[tile]
	return ok
}

// Tiles returns a sorted copy of all tile ids.
func (c *Catalog) Tiles() []string {
	return slices.Clone(c.tileList)
}

// TileSet returns a fresh copy of the tile set.
func (c *Catalog) TileSet() map[string]struct{} {
	return maps.Clone(c.tiles)
}

// Stats returns catalog sizes.
func (c *Catalog) Stats() Stats {
	return Stats{
		Rows:     len(c.rows),
		Tiles:    len(c.tiles),
		Products: len(c.productBursts),
		Bursts:   c.burstIndex.Len(),
	}
}

// Snapshot returns the cacheable form of the catalog.
func (c *Catalog) Snapshot(digest [format.DigestSize]byte) format.Snapshot {
	return format.Snapshot{Digest: digest, Rows: c.rows, Index: c.burstIndex}
}
