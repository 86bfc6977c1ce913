package format

import (
	"fmt"
	"hash/fnv"

	"github.com/relab/bbhash"
)

// KeyIndex maps a fixed set of string keys to dense positions 0..N-1 using a
// minimal perfect hash function. Lookups of keys outside the set are
// rejected by a fingerprint check.
type KeyIndex struct {
	mph          *bbhash.BBHash2
	keys         []string // keys[pos]
	fingerprints []uint64 // fingerprints[pos]
}

// BuildKeyIndex builds an index over distinct keys. The position assigned to
// each key is available from Keys.
func BuildKeyIndex(keys []string) (*KeyIndex, error) {
	if len(keys) == 0 {
		return &KeyIndex{}, nil
	}

	hashes := make([]uint64, len(keys))
	for i, k := range keys {
		hashes[i] = hashString(k)
	}

	// gamma=2.0 is a good space/time tradeoff
	mph, err := bbhash.New(hashes, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build MPHF: %w", err)
	}

	return newKeyIndex(mph, keys)
}

// newKeyIndex lays keys out in MPHF order.
func newKeyIndex(mph *bbhash.BBHash2, keys []string) (*KeyIndex, error) {
	ordered := make([]string, len(keys))
	fingerprints := make([]uint64, len(keys))
	filled := make([]bool, len(keys))

	for _, k := range keys {
		// BBHash returns 1-indexed values
		hashVal := mph.Find(hashString(k))
		if hashVal == 0 || hashVal > uint64(len(keys)) {
			return nil, fmt.Errorf("MPHF lookup failed for %q", k)
		}
		pos := hashVal - 1
		if filled[pos] {
			return nil, fmt.Errorf("MPHF collision for %q and %q", ordered[pos], k)
		}
		filled[pos] = true
		ordered[pos] = k
		fingerprints[pos] = computeFingerprint(k)
	}

	return &KeyIndex{mph: mph, keys: ordered, fingerprints: fingerprints}, nil
}

// Lookup returns the position for a key, or ok=false if the key is not in the set.
func (x *KeyIndex) Lookup(key string) (pos int, ok bool) {
	if x == nil || x.mph == nil {
		return 0, false
	}

	hashVal := x.mph.Find(hashString(key))
	if hashVal == 0 || hashVal > uint64(len(x.keys)) {
		return 0, false
	}
	pos = int(hashVal - 1)

	if x.fingerprints[pos] != computeFingerprint(key) {
		return 0, false
	}
	return pos, true
}

// Keys returns the keys in position order. The slice must not be modified.
func (x *KeyIndex) Keys() []string {
	if x == nil {
		return nil
	}
	return x.keys
}

// Len returns the number of keys.
func (x *KeyIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.keys)
}

// marshalMPHF returns the serialized hash function, or nil for an empty index.
func (x *KeyIndex) marshalMPHF() ([]byte, error) {
	if x.mph == nil {
		return nil, nil
	}
	return x.mph.MarshalBinary()
}

// unmarshalKeyIndex restores an index from a serialized hash function and
// keys stored in position order. Every key must map back to its own position.
func unmarshalKeyIndex(data []byte, keys []string) (*KeyIndex, error) {
	if len(keys) == 0 {
		return &KeyIndex{}, nil
	}

	mph := &bbhash.BBHash2{}
	if err := mph.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal MPHF: %w", err)
	}

	x, err := newKeyIndex(mph, keys)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		if x.keys[i] != k {
			return nil, fmt.Errorf("key %q stored at %d, hashes elsewhere", k, i)
		}
	}
	return x, nil
}

// hashString computes a uint64 hash for a string to use as MPHF key.
func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// computeFingerprint uses a different hash function than hashString to
// reduce collision probability.
func computeFingerprint(s string) uint64 {
	h := fnv.New64()
	h.Write([]byte(s))
	return h.Sum64()
}
