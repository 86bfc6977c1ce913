package sequence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/dist-s1-trigger/pkg/catalog"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
	"github.com/eunmann/dist-s1-trigger/pkg/refdb"
)

func tile31RGQ() *ProductSet {
	return NewProductSet(
		product.NewID("31RGQ", 0),
		product.NewID("31RGQ", 1),
		product.NewID("31RGQ", 2),
	)
}

func TestPrevious(t *testing.T) {
	n := NewNavigator(tile31RGQ())

	tests := []struct {
		from string
		want string
	}{
		{"p31RGQ_0_a302", "p31RGQ_2_a301"},
		{"p31RGQ_1_a302", "p31RGQ_0_a302"},
		{"p31RGQ_2_a302", "p31RGQ_1_a302"},
		{"p31RGQ_0_a1", "p31RGQ_2_a0"},
		// group above the tile's highest group walks down to it
		{"p31RGQ_7_a302", "p31RGQ_2_a302"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			got, err := n.PreviousID(tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrevious_SkipsMissingGroups(t *testing.T) {
	n := NewNavigator(NewProductSet(
		product.NewID("33TUN", 0),
		product.NewID("33TUN", 3),
	))

	got, err := n.PreviousID("p33TUN_3_a50")
	require.NoError(t, err)
	assert.Equal(t, "p33TUN_0_a50", got)

	got, err = n.PreviousID("p33TUN_0_a50")
	require.NoError(t, err)
	assert.Equal(t, "p33TUN_3_a49", got)
}

func TestPrevious_Errors(t *testing.T) {
	t.Run("unknown tile", func(t *testing.T) {
		_, err := NewNavigator(tile31RGQ()).Previous("p99XYZ_0_a10")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoPreviousProduct))

		var np *NoPreviousProductError
		require.True(t, errors.As(err, &np))
		assert.Equal(t, "p99XYZ_0_a10", np.DownloadBatchID)
	})

	t.Run("cycle zero", func(t *testing.T) {
		_, err := NewNavigator(tile31RGQ()).Previous("p31RGQ_0_a0")
		assert.ErrorIs(t, err, ErrNoPreviousProduct)
	})

	t.Run("step cap", func(t *testing.T) {
		n := NewNavigator(NewProductSet(product.NewID("31RGQ", 0)), WithMaxSteps(3))
		// Group 9 needs 9 steps to reach group 0 of the same cycle.
		_, err := n.Previous("p31RGQ_9_a302")
		require.ErrorIs(t, err, ErrNoPreviousProduct)

		var np *NoPreviousProductError
		require.True(t, errors.As(err, &np))
		assert.Equal(t, 3, np.Steps)
	})

	t.Run("malformed id", func(t *testing.T) {
		_, err := NewNavigator(tile31RGQ()).Previous("31RGQ_0_302")
		assert.ErrorIs(t, err, product.ErrInvalidID)
	})
}

func TestWithMaxSteps_IgnoresNonPositive(t *testing.T) {
	n := NewNavigator(tile31RGQ(), WithMaxSteps(0))
	assert.Equal(t, DefaultMaxSteps, n.maxSteps)
}

// Cycle 299 for every burst below at acq299; one cycle earlier at acq298.
var (
	acq299 = time.Date(2023, 11, 1, 1, 31, 15, 0, time.UTC)
	acq298 = acq299.Add(-granule.CycleDuration)
)

func gid(burst string, acq time.Time) string {
	return fmt.Sprintf("OPERA_L2_RTC-S1_%s_%s_20231201T000000Z_S1A_30_v1.0", burst, acq.Format(granule.TimestampLayout))
}

func amongCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Build([]refdb.Row{
		{TileID: "31RGQ", AcqGroup: 0, BurstID: "T020-041121-IW1"},
		{TileID: "31RGQ", AcqGroup: 1, BurstID: "T020-041121-IW2"},
		{TileID: "31RGQ", AcqGroup: 2, BurstID: "T020-041121-IW3"},
	})
	require.NoError(t, err)
	return c
}

func TestPreviousAmong(t *testing.T) {
	cat := amongCatalog(t)
	n := NewNavigator(cat)
	ctx := context.Background()

	t.Run("nearest candidate", func(t *testing.T) {
		got, ok, err := n.PreviousAmong(ctx, cat, "p31RGQ_0_a300", []string{
			gid("T020-041121-IW1", acq298),
			gid("T020-041121-IW2", acq299),
		})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "p31RGQ_1_a299", got)
	})

	t.Run("skips batches without candidates", func(t *testing.T) {
		got, ok, err := n.PreviousAmong(ctx, cat, "p31RGQ_0_a300", []string{
			gid("T020-041121-IW1", acq298),
		})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "p31RGQ_0_a298", got)
	})

	t.Run("none below lowest candidate cycle", func(t *testing.T) {
		_, ok, err := n.PreviousAmong(ctx, cat, "p31RGQ_0_a300", []string{
			gid("T020-041121-IW1", acq299),
			"not-a-granule",
		})
		require.NoError(t, err)
		// p31RGQ_0_a299 is the only candidate batch and it is reached.
		assert.True(t, ok)

		_, ok, err = n.PreviousAmong(ctx, cat, "p31RGQ_0_a299", []string{
			gid("T020-041121-IW1", acq299),
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("none when walking past cycle 0", func(t *testing.T) {
		acq0 := time.Date(2014, 1, 5, 1, 31, 15, 0, time.UTC)
		got, ok, err := n.PreviousAmong(ctx, cat, "p31RGQ_0_a0", []string{
			gid("T020-041121-IW1", acq0),
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, got)
	})

	t.Run("no usable candidates", func(t *testing.T) {
		_, ok, err := n.PreviousAmong(ctx, cat, "p31RGQ_0_a300", []string{"not-a-granule"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
