package gcircle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gcircletest"
	"github.com/gordian-engine/trustcircle/gcircle/gpeer"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcrypto/gcryptotest"
	"github.com/gordian-engine/trustcircle/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestCircle_SignVerify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	c := fx.CommittedCircle(ctx, "c", 0, 1, 2)

	s := fx.OtherSigner(0)
	require.False(t, c.Verify(s.PubKey()))
	require.False(t, c.HasSignature(s.PubKey()))

	require.NoError(t, c.Sign(ctx, s))
	require.True(t, c.Verify(s.PubKey()))
	require.True(t, c.HasSignature(s.PubKey()))

	require.False(t, c.Verify(nil))
	require.ErrorIs(t, c.Sign(ctx, nil), gcircle.ErrBadKey)
}

func TestCircle_Sign_failingSigner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(1)
	c := fx.CommittedCircle(ctx, "c", 0)
	before := c.Clone()

	s := gcryptotest.FailingSigner{Key: fx.OtherSigner(0).PubKey(), Err: errors.New("hsm offline")}
	err := c.Sign(ctx, s)
	require.ErrorIs(t, err, gcircle.ErrBadSignature)
	require.ErrorContains(t, err, "hsm offline")

	require.True(t, before.Equal(c))
}

func TestCircle_HasSignature_invalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(1)
	c := fx.CommittedCircle(ctx, "c", 0)

	bad := wrongMessageSigner{Signer: fx.OtherSigner(0)}
	require.NoError(t, c.Sign(ctx, bad))

	require.True(t, c.HasSignature(bad.PubKey()))
	require.False(t, c.Verify(bad.PubKey()))
}

func TestCircle_Hash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)
	c := fx.CommittedCircle(ctx, "c", 0, 1)
	h := c.Hash()
	require.Len(t, h, 32)

	// Applicants and rejected applicants are not covered.
	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
	require.Equal(t, h, c.Hash())
	require.NoError(t, c.RejectRequest(fx.Peers[0].Info, fx.Peers[2].Info))
	require.Equal(t, h, c.Hash())
	require.True(t, c.Verify(fx.UserKey()))

	// Neither are existing signatures.
	require.NoError(t, c.Sign(ctx, fx.OtherSigner(0)))
	require.Equal(t, h, c.Hash())

	// The same keys in a circle founded elsewhere hash identically.
	other := fx.CommittedCircle(ctx, "elsewhere", 1, 0)
	require.Equal(t, c.Generation(), other.Generation())
	require.Equal(t, h, other.Hash())

	// Any commit changes the hash.
	require.NoError(t, c.GenerationSign(ctx, fx.Log, fx.UserSigner, fx.Peers[0].Device()))
	require.NotEqual(t, h, c.Hash())
}

func TestCircle_GenerationSign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(4)
	log := gtest.NewLogger(t)

	c := fx.CommittedCircle(ctx, "c", 0, 1)
	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[3].Info))
	require.NoError(t, c.RejectRequest(fx.Peers[0].Info, fx.Peers[3].Info))

	ticket, err := fx.Peers[1].Info.Retire(ctx, fx.Peers[1].Signer)
	require.NoError(t, err)
	require.True(t, c.UpdatePeerInfo(ticket))

	// Installing a ticket keeps the signatures, as the device key is unchanged.
	require.True(t, c.Verify(fx.UserKey()))

	gen := c.Generation()
	require.NoError(t, c.GenerationSign(ctx, log, fx.UserSigner, fx.Peers[0].Device()))

	require.Equal(t, gen+1, c.Generation())
	require.False(t, c.HasActivePeer("peer-1"), "retirement ticket should be pruned")
	require.True(t, c.HasApplicant("peer-2"), "valid applicant should remain")
	require.Zero(t, c.CountRejectedApplicants(), "rejected applicants should be forgotten")

	require.Len(t, c.Signatures(), 2)
	require.True(t, c.Verify(fx.UserKey()))
	require.True(t, c.VerifyPeerSigned(fx.Peers[0].Info))
}

func TestCircle_GenerationSign_userKeyRotation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(2)
	c := fx.CommittedCircle(ctx, "c", 0)
	require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[1].Info))

	newUser := fx.OtherSigner(0)
	require.NoError(t, c.GenerationSign(ctx, fx.Log, newUser, fx.Peers[0].Device()))

	require.False(t, c.HasApplicant("peer-1"))
	require.True(t, c.HasRejectedApplicant("peer-1"))
	require.True(t, c.Verify(newUser.PubKey()))
	require.False(t, c.HasSignature(fx.UserKey()))
}

func TestCircle_GenerationSign_upgradesLegacyApplication(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(2)
	c := fx.CommittedCircle(ctx, "c", 0)

	legacy, err := fx.Peers[1].Info.ApplyLegacy(ctx, fx.UserSigner)
	require.NoError(t, err)
	require.True(t, legacy.ApplicationOutdated())

	require.NoError(t, c.RequestAdmission(fx.UserKey(), legacy))
	require.NoError(t, c.AcceptRequest(ctx, fx.Log, fx.UserSigner, fx.Peers[0].Device(), legacy))

	p, ok := c.Peer("peer-1")
	require.True(t, ok)
	require.False(t, p.ApplicationOutdated())
	require.Equal(t, gpeer.ApplicationCurrent, p.(gpeer.Info).Scheme())
	require.True(t, p.VerifyApplication(fx.UserKey()))
}

func TestCircle_GenerationSign_atomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := gcircletest.NewFixture(3)

	for _, tc := range []struct {
		name    string
		device  gcircle.Device
		user    gcrypto.Signer
		wantErr error
	}{
		{
			name:    "device key unavailable",
			device:  gcircle.StaticDevice{Info: fx.Peers[0].Info},
			user:    fx.UserSigner,
			wantErr: gcircle.ErrBadKey,
		},
		{
			name: "device signature fails",
			device: gcircle.StaticDevice{
				Info:   fx.Peers[0].Info,
				Signer: gcryptotest.FailingSigner{Key: fx.Peers[0].Signer.PubKey(), Err: errors.New("locked")},
			},
			user:    fx.UserSigner,
			wantErr: gcircle.ErrBadSignature,
		},
		{
			name:   "user signature fails",
			device: fx.Peers[0].Device(),
			user: gcryptotest.FailingSigner{
				Key: fx.UserKey(), Err: errors.New("locked"),
			},
			wantErr: gcircle.ErrBadSignature,
		},
		{
			name:    "no user signer",
			device:  fx.Peers[0].Device(),
			wantErr: gcircle.ErrBadKey,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := fx.CommittedCircle(ctx, "c", 0, 1)
			require.NoError(t, c.RequestAdmission(fx.UserKey(), fx.Peers[2].Info))
			ticket, err := fx.Peers[1].Info.Retire(ctx, fx.Peers[1].Signer)
			require.NoError(t, err)
			require.True(t, c.UpdatePeerInfo(ticket))

			before := c.Clone()

			err = c.GenerationSign(ctx, fx.Log, tc.user, tc.device)
			require.ErrorIs(t, err, tc.wantErr)
			require.True(t, before.Equal(c), "circle must be unchanged after failure")

			// Composite operations are all-or-nothing too.
			err = c.AcceptRequest(ctx, fx.Log, tc.user, tc.device, fx.Peers[2].Info)
			require.Error(t, err)
			require.True(t, before.Equal(c))
		})
	}
}
