package trigger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/dist-s1-trigger/pkg/fanout"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
)

func enforced(grace time.Duration) Options {
	return Options{CompleteBurstsOnly: true, GracePeriod: grace, Now: now0}
}

func TestCompute_SharedBurstTriggersBothProducts(t *testing.T) {
	cat := testCatalog(t)
	granules := denormalize(t, cat, rec(burst1), rec(burst2), rec(burst3))

	res := Compute(context.Background(), cat, granules, enforced(0))

	require.Len(t, res.Triggered, 2)
	for _, batchID := range []string{"T1_0_299", "T1_1_299"} {
		p := res.Triggered[batchID]
		require.NotNil(t, p, batchID)
		assert.Equal(t, 2, p.UsedBursts)
		assert.Equal(t, 2, p.PossibleBursts)
		assert.False(t, p.Forced)
	}
	assert.Equal(t, []string{partial(burst1, acq0), partial(burst2, acq0)}, res.Triggered["T1_0_299"].RTCGranules)
	assert.Equal(t, []string{partial(burst2, acq0), partial(burst3, acq0)}, res.Triggered["T1_1_299"].RTCGranules)

	assert.Equal(t, map[string]bool{
		partial(burst1, acq0): true,
		partial(burst2, acq0): true,
		partial(burst3, acq0): true,
	}, res.GranuleFlags)
	assert.Empty(t, res.Held)
	assert.Empty(t, res.Forced)
}

func TestCompute_PlatformsSplitIntoSeparateBatches(t *testing.T) {
	cat := testCatalog(t)
	acqA := time.Date(2025, 3, 1, 1, 31, 15, 0, time.UTC)
	acqC := acqA.Add(6 * 24 * time.Hour)
	created := acqC.Add(24 * time.Hour)
	now := acqC.Add(7 * 24 * time.Hour)

	granules := denormalize(t, cat,
		granule.Record{ID: gidOn("S1A", burst1, acqA, created)},
		granule.Record{ID: gidOn("S1A", burst2, acqA.Add(3*time.Second), created)},
		granule.Record{ID: gidOn("S1C", burst1, acqC, created)},
		granule.Record{ID: gidOn("S1C", burst2, acqC.Add(3*time.Second), created)},
	)

	res := Compute(context.Background(), cat, granules,
		Options{CompleteBurstsOnly: true, Now: now})

	cycleA, err := granule.AcquisitionCycle(burst1, acqA, "S1A")
	require.NoError(t, err)
	cycleC, err := granule.AcquisitionCycle(burst1, acqC, "S1C")
	require.NoError(t, err)
	require.NotEqual(t, cycleA, cycleC)

	for _, tc := range []struct {
		cycle int
		acq   time.Time
	}{
		{cycleA, acqA},
		{cycleC, acqC},
	} {
		batchID := fmt.Sprintf("T1_0_%d", tc.cycle)
		p := res.Triggered[batchID]
		require.NotNil(t, p, batchID)
		assert.Equal(t, 2, p.UsedBursts)
		assert.Equal(t, 2, p.PossibleBursts)
		assert.True(t, p.Complete())
		assert.False(t, p.Forced)
		assert.Equal(t, []string{partial(burst1, tc.acq), partial(burst2, tc.acq.Add(3*time.Second))}, p.RTCGranules)

		shared := res.Triggered[fmt.Sprintf("T1_1_%d", tc.cycle)]
		require.NotNil(t, shared)
		assert.Equal(t, 1, shared.UsedBursts)
	}
}

func TestCompute_ProductFields(t *testing.T) {
	cat := testCatalog(t)
	later := acq0.Add(2 * time.Second)
	ingested := now0.Add(-3 * time.Hour)
	granules := denormalize(t, cat,
		granule.Record{ID: gid(burst1, later, created0), IngestedAt: ingested},
		rec(burst2),
	)

	res := Compute(context.Background(), cat, granules, enforced(0))

	p := res.Triggered["T1_0_299"]
	require.NotNil(t, p)
	assert.Equal(t, "T1_0", p.ProductID)
	assert.Equal(t, "T1", p.TileID)
	assert.Equal(t, "pT1_0_a299", p.DownloadBatchID)
	assert.Equal(t, acq0, p.EarliestAcquisition)
	assert.Equal(t, later, p.LatestAcquisition)
	assert.Equal(t, ingested, p.EarliestCreation)
	assert.Equal(t, 299, p.AcquisitionIndex)
}

func TestCompute_DeterministicUnderShuffle(t *testing.T) {
	cat := testCatalog(t)
	records := []granule.Record{
		rec(burst1), rec(burst2), rec(burst3), rec(burst4),
		recAt(burst5, now0.Add(-time.Hour)),
		{ID: gid(burst1, acq0, created0.Add(24*time.Hour))},
		{ID: gid(burst4, acq0, created0.Add(48*time.Hour))},
	}
	opts := enforced(30 * time.Minute)
	want := Compute(context.Background(), cat, denormalize(t, cat, records...), opts)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := append([]granule.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := Compute(context.Background(), cat, denormalize(t, cat, shuffled...), opts)
		assert.Equal(t, want.Triggered, got.Triggered)
		assert.Equal(t, want.GranuleFlags, got.GranuleFlags)
	}
}

func TestCompute_CompleteProductsFlagAllGranules(t *testing.T) {
	cat := testCatalog(t)
	granules := denormalize(t, cat, rec(burst1), rec(burst2), rec(burst4), rec(burst6))

	res := Compute(context.Background(), cat, granules, enforced(time.Hour))

	for _, p := range res.Triggered {
		if !p.Complete() {
			continue
		}
		for _, id := range p.RTCGranules {
			assert.True(t, res.GranuleFlags[id], "%s in %s", id, p.BatchID)
		}
	}
}

func TestCompute_GraceBoundaryIsInclusive(t *testing.T) {
	cat := testCatalog(t)
	grace := 30 * time.Minute
	granules := denormalize(t, cat, recAt(burst1, now0.Add(-grace)))

	res := Compute(context.Background(), cat, granules, enforced(grace))

	p := res.Triggered["T1_0_299"]
	require.NotNil(t, p, "product at exactly the grace period must be kept")
	assert.True(t, p.Forced)
	assert.Equal(t, 1, p.UsedBursts)
	assert.Equal(t, 2, p.PossibleBursts)
	assert.Equal(t, []*Product{p}, res.Forced)
}

func TestCompute_ForcedProductLeavesFlagsUnset(t *testing.T) {
	cat := testCatalog(t)
	granules := denormalize(t, cat, recAt(burst1, now0.Add(-time.Hour)))

	res := Compute(context.Background(), cat, granules, enforced(time.Minute))

	require.Contains(t, res.Triggered, "T1_0_299")
	// Forced products keep their granules out of the flag map entirely.
	assert.NotContains(t, res.GranuleFlags, partial(burst1, acq0))
	assert.Empty(t, res.GranuleFlags)
}

func TestCompute_WithinGraceIsHeld(t *testing.T) {
	cat := testCatalog(t)
	grace := 30 * time.Minute
	granules := denormalize(t, cat, recAt(burst1, now0.Add(-grace+time.Second)))

	res := Compute(context.Background(), cat, granules, enforced(grace))

	assert.Empty(t, res.Triggered)
	require.Len(t, res.Held, 1)
	assert.Equal(t, "T1_0_299", res.Held[0].BatchID)
	assert.Equal(t, map[string]bool{partial(burst1, acq0): false}, res.GranuleFlags)
}

func TestCompute_UnknownIngestionUsesNow(t *testing.T) {
	cat := testCatalog(t)
	granules := denormalize(t, cat, rec(burst1))

	res := Compute(context.Background(), cat, granules, enforced(time.Nanosecond))

	assert.Empty(t, res.Triggered)
	require.Len(t, res.Held, 1)
	assert.Equal(t, now0, res.Held[0].EarliestCreation)
}

func TestCompute_ConsumedFlagIsNotOverwritten(t *testing.T) {
	cat := testCatalog(t)
	// B4 completes T2_0 but leaves T2_1 waiting for B5.
	granules := denormalize(t, cat, rec(burst4))

	res := Compute(context.Background(), cat, granules, enforced(time.Hour))

	require.Contains(t, res.Triggered, "T2_0_299")
	require.Len(t, res.Held, 1)
	assert.Equal(t, "T2_1_299", res.Held[0].BatchID)
	assert.Equal(t, map[string]bool{partial(burst4, acq0): true}, res.GranuleFlags)
}

func TestCompute_CompletenessNotEnforced(t *testing.T) {
	cat := testCatalog(t)
	granules := denormalize(t, cat, rec(burst1))

	res := Compute(context.Background(), cat, granules, Options{Now: now0, GracePeriod: time.Hour})

	p := res.Triggered["T1_0_299"]
	require.NotNil(t, p)
	assert.Equal(t, 1, p.UsedBursts)
	assert.False(t, p.Forced)
	assert.Empty(t, res.GranuleFlags)
	assert.Empty(t, res.Held)
}

func TestCompute_TileTracking(t *testing.T) {
	cat := testCatalog(t)

	t.Run("untracked", func(t *testing.T) {
		res := Compute(context.Background(), cat, denormalize(t, cat, rec(burst1)), enforced(0))
		assert.Nil(t, res.UntriggeredTiles)
		assert.Zero(t, res.UnusedGranules)
	})

	t.Run("all tiles", func(t *testing.T) {
		opts := enforced(0)
		opts.AllTiles = cat.TileSet()
		res := Compute(context.Background(), cat, denormalize(t, cat, rec(burst1)), opts)
		assert.Equal(t, map[string]struct{}{"T2": {}, "T3": {}}, res.UntriggeredTiles)
		assert.Zero(t, res.UnusedGranules)
		assert.Len(t, opts.AllTiles, 3, "input tile set must not be mutated")
	})

	t.Run("outside universe", func(t *testing.T) {
		opts := enforced(0)
		opts.AllTiles = map[string]struct{}{"T1": {}}
		res := Compute(context.Background(), cat, denormalize(t, cat, rec(burst1), rec(burst4)), opts)
		assert.NotNil(t, res.UntriggeredTiles)
		assert.Empty(t, res.UntriggeredTiles)
		// B4 maps to T2_0 and T2_1, both outside the universe.
		assert.Equal(t, 2, res.UnusedGranules)
	})
}

func TestCompute_Empty(t *testing.T) {
	cat := testCatalog(t)
	res := Compute(context.Background(), cat, map[fanout.Key]fanout.Extended{}, enforced(0))
	assert.Empty(t, res.Triggered)
	assert.Empty(t, res.GranuleFlags)
}
