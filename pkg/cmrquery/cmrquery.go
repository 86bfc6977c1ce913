// Package cmrquery builds CMR search fragments for the RTC granules that make
// up a DIST-S1 product.
package cmrquery

import (
	"slices"
	"strings"

	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// RTCNativeIDPrefix is the native id prefix of every RTC-S1 granule.
const RTCNativeIDPrefix = "OPERA_L2_RTC-S1_"

// NativeIDSeparator joins native-id terms in a CMR granule search.
const NativeIDSeparator = "&native-id[]="

// ProductBursts resolves the bursts of a product.
type ProductBursts interface {
	BurstsForProduct(id product.ID) []string
}

// BuildNativeIDQuery returns the number of bursts in a product and a
// disjunctive wildcard query matching any of their granules, e.g.
//
//	OPERA_L2_RTC-S1_T020-041121-IW1*&native-id[]=OPERA_L2_RTC-S1_T020-041122-IW1*
//
// Burst ids are sorted and de-duplicated. An unknown product yields (0, "").
func BuildNativeIDQuery(id product.ID, bursts ProductBursts) (int, string) {
	ids := slices.Clone(bursts.BurstsForProduct(id))
	slices.Sort(ids)
	ids = slices.Compact(ids)

	terms := make([]string, len(ids))
	for i, b := range ids {
		terms[i] = RTCNativeIDPrefix + b + "*"
	}
	return len(ids), strings.Join(terms, NativeIDSeparator)
}

// ParseNativeIDQuery returns the burst ids named by a query built with
// BuildNativeIDQuery.
func ParseNativeIDQuery(query string) []string {
	if query == "" {
		return nil
	}
	terms := strings.Split(query, NativeIDSeparator)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimPrefix(term, RTCNativeIDPrefix)
		term = strings.TrimSuffix(term, "*")
		out = append(out, term)
	}
	return out
}
