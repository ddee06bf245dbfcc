package gcircle_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gcircletest"
	"github.com/stretchr/testify/require"
)

func TestCircle_new(t *testing.T) {
	t.Parallel()

	fx := gcircletest.NewFixture(1)
	c := fx.NewCircle("fresh")

	require.Equal(t, "fresh", c.Name())
	require.Zero(t, c.Generation())
	require.True(t, c.IsEmpty())
	require.False(t, c.IsOffering())
	require.Empty(t, c.Signatures())
	require.Empty(t, peerIDs(c.ActivePeers()))
}

func TestCircle_peerIteration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	c := fx.CommittedCircle(ctx, "c", 0, 1, 2)

	cloud := fx.NewPeer(ctx, "cloud", fx.OtherSigner(0), true)
	require.NoError(t, c.RequestAdmission(fx.UserKey(), cloud))
	require.NoError(t, c.AcceptRequest(ctx, fx.Log, fx.UserSigner, fx.Peers[0].Device(), cloud))

	ticket, err := fx.Peers[2].Info.Retire(ctx, fx.Peers[2].Signer)
	require.NoError(t, err)
	require.True(t, c.UpdatePeerInfo(ticket))

	require.Equal(t, []string{"peer-0", "peer-1"}, peerIDs(c.Peers()))
	require.Equal(t, []string{"cloud", "peer-0", "peer-1", "peer-2"}, peerIDs(c.ActivePeers()))
	require.Equal(t, []string{"cloud", "peer-0", "peer-1", "peer-2"}, peerIDs(c.ActiveValidPeers(fx.UserKey())))
	require.Empty(t, peerIDs(c.ActiveValidPeers(fx.OtherSigner(1).PubKey())))
	require.Empty(t, peerIDs(c.ActiveValidPeers(nil)))

	require.Equal(t, 2, c.CountPeers())
	require.Equal(t, 4, c.CountActivePeers())
	require.Equal(t, 1, c.CountRetiredPeers())

	require.True(t, c.HasPeer("peer-1"))
	require.False(t, c.HasPeer("peer-2"))
	require.True(t, c.HasActivePeer("peer-2"))
	require.True(t, c.HasActiveValidPeer("peer-2", fx.UserKey()))
	require.False(t, c.HasActiveValidPeer("peer-2", nil))
	require.False(t, c.HasActivePeer("nobody"))

	p, ok := c.Peer("peer-2")
	require.True(t, ok)
	require.True(t, p.IsRetired())
}

func TestCircle_iterationIsRestartable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	c := fx.CommittedCircle(ctx, "c", 2, 0, 1)

	seq := c.ActivePeers()
	want := []string{"peer-0", "peer-1", "peer-2"}
	require.Equal(t, want, peerIDs(seq))
	require.Equal(t, want, peerIDs(seq))

	// Stopping early is respected.
	var first string
	for p := range seq {
		first = p.ID()
		break
	}
	require.Equal(t, "peer-0", first)
}

func TestCircle_State(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(4)
	c := fx.CommittedCircle(ctx, "c", 0)

	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))
	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
	require.NoError(t, c.RejectRequest(fx.Peers[0].Info, fx.Peers[2].Info))

	require.Equal(t, gcircle.StatePeer, c.State("peer-0"))
	require.Equal(t, gcircle.StateApplicant, c.State("peer-1"))
	require.Equal(t, gcircle.StateRejected, c.State("peer-2"))
	require.Equal(t, gcircle.StateUnknown, c.State("peer-3"))

	require.Equal(t, 1, c.CountApplicants())
	require.Equal(t, 1, c.CountRejectedApplicants())
	require.True(t, c.HasApplicant("peer-1"))
	require.True(t, c.HasRejectedApplicant("peer-2"))

	require.Equal(t, "Rejected", gcircle.StateRejected.String())
}

func TestCircle_Clone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	orig := fx.CommittedCircle(ctx, "c", 0, 1)
	origSigs := orig.Signatures()

	clone := orig.Clone()
	require.True(t, orig.Equal(clone))
	require.Equal(t, orig.Name(), clone.Name())

	require.NoError(t, clone.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
	require.NoError(t, clone.AcceptRequest(ctx, fx.Log, fx.UserSigner, fx.Peers[1].Device(), fx.Peers[2].Info))

	require.False(t, orig.Equal(clone))
	require.False(t, orig.HasPeer("peer-2"))
	require.Equal(t, origSigs, orig.Signatures())
	require.True(t, orig.Verify(fx.UserKey()))
	require.True(t, orig.VerifyPeerSigned(fx.Peers[0].Info))
	require.False(t, orig.VerifyPeerSigned(fx.Peers[1].Info))
}

func TestCircle_Equal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(4)
	base := fx.CommittedCircle(ctx, "c", 0)

	t.Run("insertion order is irrelevant", func(t *testing.T) {
		t.Parallel()

		a := base.Clone()
		require.NoError(t, a.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))
		require.NoError(t, a.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))

		b := base.Clone()
		require.NoError(t, b.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
		require.NoError(t, b.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))

		require.True(t, a.Equal(b))
		require.True(t, b.Equal(a))
	})

	t.Run("different members", func(t *testing.T) {
		t.Parallel()

		a := base.Clone()
		require.NoError(t, a.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))

		b := base.Clone()
		require.NoError(t, b.RequestAdmission(fx.UserKey(), fx.Peers[3].Info))

		require.False(t, a.Equal(b))
	})

	t.Run("same member in a different set", func(t *testing.T) {
		t.Parallel()

		a := base.Clone()
		require.NoError(t, a.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))

		b := a.Clone()
		require.NoError(t, b.RejectRequest(fx.Peers[0].Info, fx.Peers[1].Info))

		require.False(t, a.Equal(b))
	})

	t.Run("name is not compared", func(t *testing.T) {
		t.Parallel()

		b, err := fx.Codec().Encode(base)
		require.NoError(t, err)
		renamed := fx.CommittedCircle(ctx, "other", 0)
		decoded, err := fx.Codec().Decode(b)
		require.NoError(t, err)

		require.True(t, base.Equal(decoded))
		require.True(t, base.Equal(renamed))
	})
}
