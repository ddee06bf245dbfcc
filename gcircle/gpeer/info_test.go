package gpeer_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gpeer"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func newRegistry() *gcrypto.Registry {
	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)
	return reg
}

func TestNew_validation(t *testing.T) {
	t.Parallel()

	signers := gcryptotest.DeterministicEd25519Signers(1)
	reg := newRegistry()

	_, err := gpeer.New(gpeer.Config{Key: signers[0].PubKey(), Registry: reg})
	require.Error(t, err)

	_, err = gpeer.New(gpeer.Config{ID: "p"})
	require.ErrorIs(t, err, gcircle.ErrPublicKeyAbsent)

	_, err = gpeer.New(gpeer.Config{ID: "p", Key: signers[0].PubKey()})
	require.ErrorIs(t, err, gpeer.ErrNoRegistry)
}

func TestInfo_Apply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := gcryptotest.DeterministicEd25519Signers(3)
	user, device, other := signers[0], signers[1], signers[2]

	info, err := gpeer.New(gpeer.Config{
		ID: "laptop", Name: "brave-otter", Key: device.PubKey(), Registry: newRegistry(),
	})
	require.NoError(t, err)
	require.Equal(t, gpeer.ApplicationNone, info.Scheme())
	require.False(t, info.VerifyApplication(user.PubKey()))

	applied, err := info.Apply(ctx, user)
	require.NoError(t, err)
	require.Equal(t, gpeer.ApplicationCurrent, applied.Scheme())
	require.True(t, applied.VerifyApplication(user.PubKey()))
	require.False(t, applied.VerifyApplication(other.PubKey()))
	require.False(t, applied.VerifyApplication(nil))
	require.False(t, applied.ApplicationOutdated())

	// The original value is unchanged.
	require.Equal(t, gpeer.ApplicationNone, info.Scheme())
	require.False(t, info.Equal(applied))

	require.Equal(t, "laptop (brave-otter)", applied.String())
}

func TestInfo_ApplyLegacy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := gcryptotest.DeterministicEd25519Signers(3)
	user, device, otherDevice := signers[0], signers[1], signers[2]
	reg := newRegistry()

	info, err := gpeer.New(gpeer.Config{ID: "phone", Key: device.PubKey(), Registry: reg})
	require.NoError(t, err)

	legacy, err := info.ApplyLegacy(ctx, user)
	require.NoError(t, err)
	require.True(t, legacy.ApplicationOutdated())
	require.True(t, legacy.VerifyApplication(user.PubKey()))

	// The legacy scheme does not bind the device key,
	// so the same proof verifies for a different key under the same ID.
	swapped, err := gpeer.New(gpeer.Config{ID: "phone", Key: otherDevice.PubKey(), Registry: reg})
	require.NoError(t, err)
	swappedLegacy, err := swapped.ApplyLegacy(ctx, user)
	require.NoError(t, err)
	require.True(t, swappedLegacy.VerifyApplication(user.PubKey()))

	p, err := legacy.UpgradeApplication(ctx, user)
	require.NoError(t, err)
	upgraded := p.(gpeer.Info)
	require.Equal(t, gpeer.ApplicationCurrent, upgraded.Scheme())
	require.True(t, upgraded.VerifyApplication(user.PubKey()))
	require.Equal(t, legacy.ID(), upgraded.ID())
	require.True(t, legacy.PubKey().Equal(upgraded.PubKey()))
}

func TestInfo_Apply_failingSigner(t *testing.T) {
	t.Parallel()

	signers := gcryptotest.DeterministicEd25519Signers(2)
	info, err := gpeer.New(gpeer.Config{ID: "p", Key: signers[1].PubKey(), Registry: newRegistry()})
	require.NoError(t, err)

	_, err = info.Apply(context.Background(), gcryptotest.FailingSigner{Key: signers[0].PubKey(), Err: context.Canceled})
	require.ErrorIs(t, err, context.Canceled)
}

func TestInfo_Retire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := gcryptotest.DeterministicEd25519Signers(2)
	user, device := signers[0], signers[1]

	info, err := gpeer.New(gpeer.Config{ID: "tablet", Key: device.PubKey(), Registry: newRegistry()})
	require.NoError(t, err)
	info, err = info.Apply(ctx, user)
	require.NoError(t, err)
	require.False(t, info.VerifyRetirement())

	_, err = info.Retire(ctx, user)
	require.ErrorIs(t, err, gpeer.ErrKeyMismatch)
	_, err = info.Retire(ctx, nil)
	require.ErrorIs(t, err, gpeer.ErrKeyMismatch)

	ticket, err := info.Retire(ctx, device)
	require.NoError(t, err)
	require.True(t, ticket.IsRetired())
	require.True(t, ticket.VerifyRetirement())
	require.False(t, info.IsRetired())

	// A retirement ticket keeps the admission proof.
	require.True(t, ticket.VerifyApplication(user.PubKey()))
	require.Equal(t, info.Scheme(), ticket.Scheme())
}

func TestCodec_roundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := gcryptotest.DeterministicEd25519Signers(2)
	reg := newRegistry()
	cd := gpeer.Codec{Registry: reg}

	plain, err := gpeer.New(gpeer.Config{ID: "p", Name: "calm-heron", Key: signers[1].PubKey(), Registry: reg})
	require.NoError(t, err)
	applied, err := plain.Apply(ctx, signers[0])
	require.NoError(t, err)
	legacy, err := plain.ApplyLegacy(ctx, signers[0])
	require.NoError(t, err)
	retired, err := applied.Retire(ctx, signers[1])
	require.NoError(t, err)
	cloud, err := gpeer.New(gpeer.Config{ID: "cloud", Key: signers[0].PubKey(), CloudIdentity: true, Registry: reg})
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		info gpeer.Info
	}{
		{"plain", plain},
		{"applied", applied},
		{"legacy", legacy},
		{"retired", retired},
		{"cloud", cloud},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := cd.Decode(tc.info.Bytes())
			require.NoError(t, err)

			require.True(t, tc.info.Equal(got))
			require.Equal(t, tc.info.ID(), got.ID())
			require.Equal(t, tc.info.Name(), got.Name())
			require.Equal(t, tc.info.Scheme(), got.Scheme())
			require.Equal(t, tc.info.IsRetired(), got.IsRetired())
			require.Equal(t, tc.info.IsCloudIdentity(), got.IsCloudIdentity())
			require.True(t, tc.info.PubKey().Equal(got.PubKey()))
			require.Equal(t, tc.info.VerifyApplication(signers[0].PubKey()), got.VerifyApplication(signers[0].PubKey()))
			require.Equal(t, tc.info.VerifyRetirement(), got.VerifyRetirement())

			p, err := cd.DecodePeer(tc.info.Bytes())
			require.NoError(t, err)
			require.True(t, tc.info.Equal(p))
		})
	}
}

func TestCodec_Decode_errors(t *testing.T) {
	t.Parallel()

	signers := gcryptotest.DeterministicEd25519Signers(1)
	reg := newRegistry()

	info, err := gpeer.New(gpeer.Config{ID: "p", Key: signers[0].PubKey(), Registry: reg})
	require.NoError(t, err)
	b := info.Bytes()

	_, err = gpeer.Codec{}.Decode(b)
	require.ErrorIs(t, err, gpeer.ErrNoRegistry)

	cd := gpeer.Codec{Registry: reg}
	_, err = cd.Decode(b[:len(b)-1])
	require.Error(t, err)

	_, err = cd.Decode(append(append([]byte(nil), b...), 0))
	require.Error(t, err)

	// A registry without the key type cannot decode the key.
	_, err = gpeer.Codec{Registry: new(gcrypto.Registry)}.Decode(b)
	require.ErrorContains(t, err, "no registered public key type")
}

func TestInfo_Clone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := gcryptotest.DeterministicEd25519Signers(2)
	info, err := gpeer.New(gpeer.Config{ID: "p", Key: signers[1].PubKey(), Registry: newRegistry()})
	require.NoError(t, err)
	info, err = info.Apply(ctx, signers[0])
	require.NoError(t, err)

	c := info.Clone()
	require.True(t, info.Equal(c))

	// Bytes returns a copy.
	b := c.Bytes()
	b[len(b)-1] ^= 0xff
	require.True(t, info.Equal(c))
}
