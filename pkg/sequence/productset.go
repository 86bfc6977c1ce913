package sequence

import "github.com/eunmann/dist-s1-trigger/pkg/product"

// ProductSet is a TileProducts backed by an explicit list of products, for
// callers that know a tile's products without a full catalog.
type ProductSet struct {
	products map[product.ID]struct{}
	maxGroup map[string]int
}

// NewProductSet builds a ProductSet.
func NewProductSet(ids ...product.ID) *ProductSet {
	s := &ProductSet{
		products: make(map[product.ID]struct{}, len(ids)),
		maxGroup: make(map[string]int),
	}
	for _, id := range ids {
		s.products[id] = struct{}{}
		if g, ok := s.maxGroup[id.Tile]; !ok || id.Group > g {
			s.maxGroup[id.Tile] = id.Group
		}
	}
	return s
}

// HasProduct implements TileProducts.
func (s *ProductSet) HasProduct(id product.ID) bool {
	_, ok := s.products[id]
	return ok
}

// MaxGroup implements TileProducts.
func (s *ProductSet) MaxGroup(tile string) (int, bool) {
	g, ok := s.maxGroup[tile]
	return g, ok
}
