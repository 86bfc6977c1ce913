package trigger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eunmann/dist-s1-trigger/pkg/catalog"
	"github.com/eunmann/dist-s1-trigger/pkg/fanout"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/refdb"
)

const (
	burst1 = "T020-041121-IW1"
	burst2 = "T020-041121-IW2"
	burst3 = "T020-041121-IW3"
	burst4 = "T020-041122-IW1"
	burst5 = "T020-041122-IW2"
	burst6 = "T020-041123-IW1"

	unknownBurst = "T099-000001-IW1"
)

var (
	// acq0 falls in acquisition cycle 299 for every burst above.
	acq0     = time.Date(2023, 11, 1, 1, 31, 15, 0, time.UTC)
	created0 = time.Date(2023, 11, 4, 4, 45, 23, 0, time.UTC)
	now0     = time.Date(2023, 11, 10, 0, 0, 0, 0, time.UTC)
)

// testCatalog:
//
//	T1_0: B1 B2    T1_1: B2 B3
//	T2_0: B4       T2_1: B4 B5
//	T3_0: B6
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Build([]refdb.Row{
		{TileID: "T1", AcqGroup: 0, BurstID: burst1},
		{TileID: "T1", AcqGroup: 0, BurstID: burst2},
		{TileID: "T1", AcqGroup: 1, BurstID: burst2},
		{TileID: "T1", AcqGroup: 1, BurstID: burst3},
		{TileID: "T2", AcqGroup: 0, BurstID: burst4},
		{TileID: "T2", AcqGroup: 1, BurstID: burst4},
		{TileID: "T2", AcqGroup: 1, BurstID: burst5},
		{TileID: "T3", AcqGroup: 0, BurstID: burst6},
	})
	require.NoError(t, err)
	return c
}

func gid(burst string, acq, created time.Time) string {
	return gidOn("S1A", burst, acq, created)
}

func gidOn(sensor, burst string, acq, created time.Time) string {
	return fmt.Sprintf("OPERA_L2_RTC-S1_%s_%s_%s_%s_30_v1.0",
		burst, acq.Format(granule.TimestampLayout), created.Format(granule.TimestampLayout), sensor)
}

func partial(burst string, acq time.Time) string {
	return fmt.Sprintf("OPERA_L2_RTC-S1_%s_%s", burst, acq.Format(granule.TimestampLayout))
}

func parseAll(t *testing.T, records ...granule.Record) []granule.Granule {
	t.Helper()
	out := make([]granule.Granule, 0, len(records))
	for _, r := range records {
		g, err := granule.ParseRecord(r)
		require.NoError(t, err)
		out = append(out, g)
	}
	return out
}

func denormalize(t *testing.T, cat *catalog.Catalog, records ...granule.Record) map[fanout.Key]fanout.Extended {
	t.Helper()
	ext, _ := fanout.Extend(cat, parseAll(t, records...), fanout.ExtendOptions{})
	return fanout.Dedupe(ext)
}

func rec(burst string) granule.Record {
	return granule.Record{ID: gid(burst, acq0, created0)}
}

func recAt(burst string, ingested time.Time) granule.Record {
	return granule.Record{ID: gid(burst, acq0, created0), IngestedAt: ingested}
}
