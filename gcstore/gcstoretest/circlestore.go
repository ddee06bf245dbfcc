// Package gcstoretest contains compliance tests
// that every gcstore implementation must pass.
package gcstoretest

import (
	"context"
	"testing"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gcircletest"
	"github.com/gordian-engine/trustcircle/gcstore"
	"github.com/stretchr/testify/require"
)

// TestCircleStoreCompliance runs the compliance suite against the stores returned by f.
// f is called once per subtest, and it may register cleanup functions
// with the provided cleanup argument, which has the signature of [testing.T.Cleanup].
func TestCircleStoreCompliance(t *testing.T, f func(cleanup func(func())) (gcstore.CircleStore, error)) {
	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	cd := fx.Codec()

	small := fx.CommittedCircle(ctx, "family", 0)
	smallBytes, err := cd.Encode(small)
	require.NoError(t, err)

	big := fx.CommittedCircle(ctx, "family", 0, 1, 2)
	bigBytes, err := cd.Encode(big)
	require.NoError(t, err)
	require.Greater(t, big.Generation(), small.Generation())

	t.Run("missing circle", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.LoadCircle(ctx, "family")
		var nce gcstore.NoCircleError
		require.ErrorAs(t, err, &nce)
		require.Equal(t, "family", nce.Name)

		names, err := s.CircleNames(ctx)
		require.NoError(t, err)
		require.Empty(t, names)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveCircle(ctx, "family", small.Generation(), smallBytes))

		gen, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, small.Generation(), gen)
		require.Equal(t, smallBytes, data)

		got, err := cd.Decode(data)
		require.NoError(t, err)
		require.True(t, small.Equal(got))
	})

	t.Run("saved data is copied", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		in := append([]byte(nil), smallBytes...)
		require.NoError(t, s.SaveCircle(ctx, "family", small.Generation(), in))
		in[0] ^= 0xff

		_, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, smallBytes, data)

		data[0] ^= 0xff
		_, data, err = s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, smallBytes, data)
	})

	t.Run("newer generation replaces", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveCircle(ctx, "family", small.Generation(), smallBytes))
		require.NoError(t, s.SaveCircle(ctx, "family", big.Generation(), bigBytes))

		gen, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, big.Generation(), gen)
		require.Equal(t, bigBytes, data)
	})

	t.Run("same generation replaces", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveCircle(ctx, "family", small.Generation(), smallBytes))

		withApplicant := small.Clone()
		require.NoError(t, withApplicant.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))
		b, err := cd.Encode(withApplicant)
		require.NoError(t, err)
		require.Equal(t, small.Generation(), withApplicant.Generation())

		require.NoError(t, s.SaveCircle(ctx, "family", withApplicant.Generation(), b))

		_, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, b, data)
	})

	t.Run("stale generation rejected", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveCircle(ctx, "family", big.Generation(), bigBytes))

		err = s.SaveCircle(ctx, "family", small.Generation(), smallBytes)
		var sge gcstore.StaleGenerationError
		require.ErrorAs(t, err, &sge)
		require.Equal(t, "family", sge.Name)
		require.Equal(t, big.Generation(), sge.Have)
		require.Equal(t, small.Generation(), sge.Want)

		gen, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, big.Generation(), gen)
		require.Equal(t, bigBytes, data)
	})

	t.Run("generations above the signed range", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		low := gcircle.Generation(0x7fffffff_00000005)
		high := gcircle.Generation(1<<63 + 1)
		top := gcircle.Generation(1<<64 - 1)

		require.NoError(t, s.SaveCircle(ctx, "family", low, smallBytes))
		require.NoError(t, s.SaveCircle(ctx, "family", high, bigBytes))

		gen, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, high, gen)
		require.Equal(t, bigBytes, data)

		err = s.SaveCircle(ctx, "family", low, smallBytes)
		var sge gcstore.StaleGenerationError
		require.ErrorAs(t, err, &sge)
		require.Equal(t, high, sge.Have)

		require.NoError(t, s.SaveCircle(ctx, "family", top, smallBytes))
		gen, _, err = s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, top, gen)
	})

	t.Run("names are independent", func(t *testing.T) {
		t.Parallel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveCircle(ctx, "work", big.Generation(), bigBytes))
		require.NoError(t, s.SaveCircle(ctx, "family", small.Generation(), smallBytes))
		require.NoError(t, s.SaveCircle(ctx, "archive", gcircle.Generation(1), []byte{0x30, 0x00}))

		names, err := s.CircleNames(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"archive", "family", "work"}, names)

		_, data, err := s.LoadCircle(ctx, "family")
		require.NoError(t, err)
		require.Equal(t, smallBytes, data)
	})
}
