// Package product defines the composite identifiers used to address DIST-S1
// products: the product id ("{tile}_{group}"), the batch id
// ("{tile}_{group}_{cycle}") and the download batch id ("p{tile}_{group}_a{cycle}").
package product

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID is returned when a composite identifier cannot be parsed.
var ErrInvalidID = errors.New("invalid product identifier")

// ID identifies a DIST-S1 product: one acquisition group within an MGRS tile.
type ID struct {
	Tile  string
	Group int
}

// NewID builds a product ID.
func NewID(tile string, group int) ID {
	return ID{Tile: tile, Group: group}
}

// String formats the ID as "{tile}_{group}".
func (id ID) String() string {
	return id.Tile + "_" + strconv.Itoa(id.Group)
}

// Less orders IDs by tile, then numerically by group.
func (id ID) Less(other ID) bool {
	if id.Tile != other.Tile {
		return id.Tile < other.Tile
	}
	return id.Group < other.Group
}

// ParseID parses "{tile}_{group}".
func ParseID(s string) (ID, error) {
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 || idx == len(s)-1 {
		return ID{}, fmt.Errorf("%w: product id %q", ErrInvalidID, s)
	}
	group, err := strconv.Atoi(s[idx+1:])
	if err != nil || group < 0 {
		return ID{}, fmt.Errorf("%w: product id %q: bad acquisition group", ErrInvalidID, s)
	}
	return ID{Tile: s[:idx], Group: group}, nil
}

// Batch identifies a product at a specific acquisition cycle.
type Batch struct {
	Product ID
	Cycle   int
}

// NewBatch builds a Batch.
func NewBatch(id ID, cycle int) Batch {
	return Batch{Product: id, Cycle: cycle}
}

// String formats the batch id as "{tile}_{group}_{cycle}".
func (b Batch) String() string {
	return b.Product.String() + "_" + strconv.Itoa(b.Cycle)
}

// DownloadBatchID formats the batch as "p{tile}_{group}_a{cycle}".
func (b Batch) DownloadBatchID() string {
	return "p" + b.Product.String() + "_a" + strconv.Itoa(b.Cycle)
}

// UniqueID combines the download batch id with a burst id.
func (b Batch) UniqueID(burstID string) string {
	return b.DownloadBatchID() + "_" + burstID
}

// ParseBatch parses "{tile}_{group}_{cycle}".
func ParseBatch(s string) (Batch, error) {
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 || idx == len(s)-1 {
		return Batch{}, fmt.Errorf("%w: batch id %q", ErrInvalidID, s)
	}
	cycle, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Batch{}, fmt.Errorf("%w: batch id %q: bad acquisition cycle", ErrInvalidID, s)
	}
	id, err := ParseID(s[:idx])
	if err != nil {
		return Batch{}, fmt.Errorf("%w: batch id %q", ErrInvalidID, s)
	}
	return Batch{Product: id, Cycle: cycle}, nil
}

// ParseDownloadBatchID parses "p{tile}_{group}_a{cycle}".
func ParseDownloadBatchID(s string) (Batch, error) {
	if !strings.HasPrefix(s, "p") {
		return Batch{}, fmt.Errorf("%w: download batch id %q: missing 'p' prefix", ErrInvalidID, s)
	}
	idx := strings.LastIndex(s, "_a")
	if idx <= 1 || idx+2 >= len(s) {
		return Batch{}, fmt.Errorf("%w: download batch id %q: missing '_a' cycle", ErrInvalidID, s)
	}
	cycle, err := strconv.Atoi(s[idx+2:])
	if err != nil {
		return Batch{}, fmt.Errorf("%w: download batch id %q: bad acquisition cycle", ErrInvalidID, s)
	}
	id, err := ParseID(s[1:idx])
	if err != nil {
		return Batch{}, fmt.Errorf("%w: download batch id %q", ErrInvalidID, s)
	}
	return Batch{Product: id, Cycle: cycle}, nil
}
