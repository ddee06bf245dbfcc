package gcircle_test

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gcircletest"
	"github.com/stretchr/testify/require"
)

func TestGeneration_Next(t *testing.T) {
	t.Parallel()

	now := time.Unix(2_000_000_000, 0)
	wantEpoch := uint32(1_000_000_000)

	g := gcircle.Generation(0).Next(now)
	require.Equal(t, wantEpoch, g.Epoch())
	require.Equal(t, uint32(1), g.Sequence())

	// Once the epoch is set, later clocks do not change it.
	g2 := g.Next(now.Add(time.Hour))
	require.Equal(t, wantEpoch, g2.Epoch())
	require.Equal(t, uint32(2), g2.Sequence())

	t.Run("sets epoch on a sequence without one", func(t *testing.T) {
		t.Parallel()

		g := gcircle.Generation(41).Next(now)
		require.Equal(t, wantEpoch, g.Epoch())
		require.Equal(t, uint32(42), g.Sequence())
	})
}

func TestGeneration_Reset_monotonic(t *testing.T) {
	t.Parallel()

	start := time.Unix(2_000_000_000, 0)

	for _, tc := range []struct {
		name string
		step time.Duration
	}{
		{name: "clock held constant", step: 0},
		{name: "clock moving backwards", step: -time.Hour},
		{name: "clock moving forwards slowly", step: time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			now := start
			var g gcircle.Generation
			for range 10 {
				next := g.Reset(now)
				require.Greater(t, next, g)
				require.Equal(t, uint32(1), next.Sequence())

				g = next
				now = now.Add(tc.step)
			}
		})
	}

	t.Run("after many increments", func(t *testing.T) {
		t.Parallel()

		g := gcircle.Generation(0).Next(start)
		for range 100 {
			g = g.Next(start)
		}

		next := g.Reset(start)
		require.Greater(t, next, g)
		require.Equal(t, g.Epoch()+1, next.Epoch())
	})

	t.Run("at the maximum epoch", func(t *testing.T) {
		t.Parallel()

		g := gcircle.Generation(0x7fffffff_00000005)
		require.Equal(t, uint32(1<<31-1), g.Epoch())

		for range 5 {
			next := g.Reset(start)
			require.Greater(t, next, g)
			require.Equal(t, g.Epoch(), next.Epoch())
			g = next
		}
		require.Equal(t, uint32(10), g.Sequence())
	})

	t.Run("maximum generation", func(t *testing.T) {
		t.Parallel()

		g := gcircle.MaxGeneration - 1
		require.Equal(t, gcircle.MaxGeneration, g.Reset(start))
		require.Equal(t, gcircle.MaxGeneration, gcircle.MaxGeneration.Reset(start))
		require.Equal(t, uint32(1<<31-1), gcircle.MaxGeneration.Epoch())
	})
}

func TestCircle_ResetToEmpty_monotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(2)
	c := fx.CommittedCircle(ctx, "c", 0, 1)

	prev := c.Generation()
	for i := range 6 {
		if i%2 == 0 {
			fx.Clock.Add(-24 * time.Hour)
		}

		c.ResetToEmpty()
		require.Greater(t, c.Generation(), prev)
		require.True(t, c.IsEmpty())
		require.Empty(t, c.Signatures())

		prev = c.Generation()
	}
}
