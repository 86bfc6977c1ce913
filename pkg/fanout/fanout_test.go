package fanout

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

type burstMap map[string][]product.ID

func (m burstMap) ProductsForBurst(b string) []product.ID { return m[b] }

const (
	idV1 = "OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231104T044523Z_S1A_30_v1.0"
	idV2 = "OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231201T000000Z_S1A_30_v1.0"
)

func mustParse(t *testing.T, id string) granule.Granule {
	t.Helper()
	g, err := granule.Parse(id)
	require.NoError(t, err)
	return g
}

func TestExtendFansOutToEveryProduct(t *testing.T) {
	cat := burstMap{"T020-041121-IW1": {
		product.NewID("31RGQ", 0),
		product.NewID("31RGQ", 3),
		product.NewID("32RKV", 1),
	}}
	g := mustParse(t, idV1)

	out, unused := Extend(cat, []granule.Granule{g}, ExtendOptions{})
	require.Len(t, out, 3)
	assert.Zero(t, unused)

	want := []struct{ batch, download, unique string }{
		{"31RGQ_0_299", "p31RGQ_0_a299", "p31RGQ_0_a299_T020-041121-IW1"},
		{"31RGQ_3_299", "p31RGQ_3_a299", "p31RGQ_3_a299_T020-041121-IW1"},
		{"32RKV_1_299", "p32RKV_1_a299", "p32RKV_1_a299_T020-041121-IW1"},
	}
	for i, w := range want {
		assert.Equal(t, w.batch, out[i].BatchID)
		assert.Equal(t, w.download, out[i].DownloadBatchID)
		assert.Equal(t, w.unique, out[i].UniqueID)
		assert.Equal(t, g.PartialID, out[i].PartialID)
	}
	assert.Equal(t, "32RKV", out[2].TileID())
	assert.Equal(t, 1, out[2].AcquisitionGroup())
}

func TestExtendDedupeToOneProduct(t *testing.T) {
	cat := burstMap{"T020-041121-IW1": {product.NewID("31RGQ", 0), product.NewID("31RGQ", 3)}}

	out, _ := Extend(cat, []granule.Granule{mustParse(t, idV1)}, ExtendOptions{DedupeToOneProduct: true})
	require.Len(t, out, 1)
	assert.Equal(t, product.NewID("31RGQ", 0), out[0].Product)
}

func TestExtendUnknownBurst(t *testing.T) {
	out, unused := Extend(burstMap{}, []granule.Granule{mustParse(t, idV1), mustParse(t, idV2)}, ExtendOptions{})
	assert.Empty(t, out)
	assert.Equal(t, 2, unused)
}

func TestExtendForcedProduct(t *testing.T) {
	forced := product.NewID("11SLT", 4)
	cat := burstMap{"T020-041121-IW1": {product.NewID("31RGQ", 0), product.NewID("31RGQ", 3)}}

	// Assigned even where the catalog disagrees or does not know the burst.
	out, unused := Extend(cat, []granule.Granule{mustParse(t, idV1)}, ExtendOptions{ForcedProduct: &forced})
	require.Len(t, out, 1)
	assert.Zero(t, unused)
	assert.Equal(t, "p11SLT_4_a299", out[0].DownloadBatchID)

	out, unused = Extend(burstMap{}, []granule.Granule{mustParse(t, idV1)}, ExtendOptions{ForcedProduct: &forced})
	require.Len(t, out, 1)
	assert.Zero(t, unused)
}

func TestDedupeKeepsLatestRevision(t *testing.T) {
	cat := burstMap{"T020-041121-IW1": {product.NewID("31RGQ", 0)}}
	ext, _ := Extend(cat, []granule.Granule{mustParse(t, idV1), mustParse(t, idV2)}, ExtendOptions{})
	require.Len(t, ext, 2)

	for _, order := range [][]Extended{ext, {ext[1], ext[0]}} {
		got := Dedupe(order)
		require.Len(t, got, 1)
		for k, v := range got {
			assert.Equal(t, "31RGQ_0_299", k.BatchID)
			assert.Equal(t, idV2, v.ID)
		}
	}
}

func TestDedupeKeepsDistinctBatches(t *testing.T) {
	cat := burstMap{"T020-041121-IW1": {product.NewID("31RGQ", 0), product.NewID("31RGQ", 1)}}
	ext, _ := Extend(cat, []granule.Granule{mustParse(t, idV1), mustParse(t, idV2)}, ExtendOptions{})
	require.Len(t, ext, 4)

	got := Dedupe(ext)
	assert.Len(t, got, 2)
}

func TestDedupeIgnoresFileSuffix(t *testing.T) {
	cat := burstMap{"T020-041121-IW1": {product.NewID("31RGQ", 0)}}
	ext, _ := Extend(cat, []granule.Granule{
		mustParse(t, idV1+"_VV.tif"),
		mustParse(t, idV1+"_VH.tif"),
		mustParse(t, idV1+".h5"),
	}, ExtendOptions{})

	got := Dedupe(ext)
	require.Len(t, got, 1)
	for _, v := range got {
		assert.Equal(t, idV1+"_VV.tif", v.ID)
	}
}

func TestSortedIsDeterministic(t *testing.T) {
	cat := burstMap{
		"T020-041121-IW1": {product.NewID("31RGQ", 0), product.NewID("31RGQ", 1)},
		"T020-041122-IW1": {product.NewID("31RGQ", 0)},
	}
	ids := []string{
		idV1,
		idV2,
		"OPERA_L2_RTC-S1_T020-041122-IW1_20231101T013118Z_20231104T044523Z_S1A_30_v1.0",
	}
	var granules []granule.Granule
	for _, id := range ids {
		granules = append(granules, mustParse(t, id))
	}

	ext, _ := Extend(cat, granules, ExtendOptions{})
	want := Sorted(Dedupe(ext))

	r := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		r.Shuffle(len(ext), func(i, j int) { ext[i], ext[j] = ext[j], ext[i] })
		assert.Equal(t, want, Sorted(Dedupe(ext)))
	}
}
