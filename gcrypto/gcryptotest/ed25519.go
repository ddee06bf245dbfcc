package gcryptotest

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"sync"

	"github.com/gordian-engine/trustcircle/gcrypto"
)

var muSigners sync.RWMutex
var generatedSigners []gcrypto.Ed25519Signer

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys are derived from their index.
//
// Subsequent runs of the same test use the same keys,
// so logs involving key IDs do not change across runs.
// The generated signers are cached for the life of the test binary.
func DeterministicEd25519Signers(n int) []gcrypto.Ed25519Signer {
	res := optimisticLoadSigners(n)

	if len(res) >= n {
		return res
	}

	// We weren't able to load all the signers from the read lock, so take the write lock.
	muSigners.Lock()
	defer muSigners.Unlock()

	// Check the length again, because it is possible that
	// another writer filled the generated slice before we acquired the lock.
	for i := len(generatedSigners); i < n; i++ {
		generatedSigners = append(generatedSigners, generateOneSigner(i))
	}

	for i := len(res); i < n; i++ {
		res = append(res, generatedSigners[i])
	}

	return res
}

func optimisticLoadSigners(n int) []gcrypto.Ed25519Signer {
	res := make([]gcrypto.Ed25519Signer, 0, n)

	muSigners.RLock()
	defer muSigners.RUnlock()

	for i, s := range generatedSigners {
		if i >= n {
			break
		}

		res = append(res, s)
	}

	return res
}

func generateOneSigner(i int) gcrypto.Ed25519Signer {
	var seed [ed25519.SeedSize]byte
	copy(seed[:], "gcircle-test-key")
	binary.BigEndian.PutUint64(seed[24:32], uint64(i))

	return gcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:]))
}

// DeterministicEd25519PubKeys returns the public keys of [DeterministicEd25519Signers].
func DeterministicEd25519PubKeys(n int) []gcrypto.PubKey {
	out := make([]gcrypto.PubKey, n)
	for i, s := range DeterministicEd25519Signers(n) {
		out[i] = s.PubKey()
	}
	return out
}

// FailingSigner is a [gcrypto.Signer] whose Sign method always returns Err.
type FailingSigner struct {
	Key gcrypto.PubKey
	Err error
}

func (s FailingSigner) PubKey() gcrypto.PubKey {
	return s.Key
}

func (s FailingSigner) Sign(context.Context, []byte) ([]byte, error) {
	return nil, s.Err
}
