package gcrypto_test

import (
	"context"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func TestSignatureProof(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	signers := gcryptotest.DeterministicEd25519Signers(4)
	keys := gcryptotest.DeterministicEd25519PubKeys(4)

	hello := []byte("hello")

	sigs := make([][]byte, len(signers))
	for i, s := range signers {
		var err error
		sigs[i], err = s.Sign(ctx, hello)
		require.NoError(t, err)
	}

	t.Run("AddSignature", func(t *testing.T) {
		t.Run("accepts valid signature", func(t *testing.T) {
			t.Parallel()

			p := gcrypto.NewSignatureProof(hello, keys[:2])
			require.NoError(t, p.AddSignature(sigs[0], keys[0]))
			require.True(t, p.HasSignature(keys[0]))
			require.False(t, p.HasSignature(keys[1]))
		})

		t.Run("rejects invalid signature from valid key", func(t *testing.T) {
			t.Parallel()

			p := gcrypto.NewSignatureProof(hello, keys[:2])

			other, err := signers[0].Sign(ctx, []byte("something else"))
			require.NoError(t, err)

			require.ErrorIs(t, p.AddSignature(other, keys[0]), gcrypto.ErrInvalidSignature)
			require.False(t, p.HasSignature(keys[0]))
		})

		t.Run("rejects unknown key", func(t *testing.T) {
			t.Parallel()

			p := gcrypto.NewSignatureProof(hello, keys[:1])
			require.ErrorIs(t, p.AddSignature(sigs[1], keys[1]), gcrypto.ErrUnknownKey)
		})
	})

	t.Run("MergeKeyed", func(t *testing.T) {
		t.Run("mixed valid, invalid, and foreign signatures", func(t *testing.T) {
			t.Parallel()

			p := gcrypto.NewSignatureProof(hello, keys[:3])

			res := p.MergeKeyed(map[string][]byte{
				gcrypto.KeyID(keys[0]): sigs[0],
				gcrypto.KeyID(keys[1]): sigs[2], // Wrong signer.
				gcrypto.KeyID(keys[3]): sigs[3], // Not a candidate.
			})

			require.False(t, res.AllValidSignatures)
			require.True(t, res.IncreasedSignatures)
			require.Equal(t, uint(1), res.Invalid.Count())
			require.True(t, res.Invalid.Test(1))

			var bs bitset.BitSet
			p.SignatureBitSet(&bs)
			require.Equal(t, uint(1), bs.Count())
			require.True(t, bs.Test(0))
		})

		t.Run("repeated merge does not increase", func(t *testing.T) {
			t.Parallel()

			p := gcrypto.NewSignatureProof(hello, keys[:2])
			in := map[string][]byte{gcrypto.KeyID(keys[1]): sigs[1]}

			require.True(t, p.MergeKeyed(in).IncreasedSignatures)

			res := p.MergeKeyed(in)
			require.True(t, res.AllValidSignatures)
			require.False(t, res.IncreasedSignatures)
		})
	})

	t.Run("Clone is independent", func(t *testing.T) {
		t.Parallel()

		p := gcrypto.NewSignatureProof(hello, keys[:2])
		require.NoError(t, p.AddSignature(sigs[0], keys[0]))

		c := p.Clone()
		require.NoError(t, c.AddSignature(sigs[1], keys[1]))

		require.False(t, p.HasSignature(keys[1]))
		require.True(t, c.HasSignature(keys[1]))
	})
}
