package fanout

import (
	"cmp"
	"maps"
	"slices"
)

// Key identifies one physical acquisition of a burst for one product batch.
type Key struct {
	PartialID string
	BatchID   string
}

// Dedupe keeps, per key, the record with the greatest full granule id. The
// fixed-width creation timestamp makes that the latest revision.
func Dedupe(extended []Extended) map[Key]Extended {
	out := make(map[Key]Extended, len(extended))
	for _, e := range extended {
		k := Key{PartialID: e.PartialID, BatchID: e.BatchID}
		if prev, ok := out[k]; ok && prev.ID >= e.ID {
			continue
		}
		out[k] = e
	}
	return out
}

// Sorted returns the records ordered by batch id, then partial id.
func Sorted(m map[Key]Extended) []Extended {
	keys := slices.SortedFunc(maps.Keys(m), func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.BatchID, b.BatchID), cmp.Compare(a.PartialID, b.PartialID))
	})
	out := make([]Extended, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
