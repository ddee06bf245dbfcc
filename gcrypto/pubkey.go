package gcrypto

import (
	"context"
	"fmt"

	"github.com/multiformats/go-multihash"
)

type PubKey interface {
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool

	// TypeName is the name the key type is registered under in a [Registry].
	TypeName() string
}

// Signer produces raw signatures for a single private key.
type Signer interface {
	PubKey() PubKey

	Sign(ctx context.Context, input []byte) ([]byte, error)
}

// KeyID returns the stable identifier for k,
// which is the base58 form of a sha2-256 multihash over the key bytes.
//
// The identifier is used as the key of signature maps,
// so it must never change for a given key.
func KeyID(k PubKey) string {
	mh, err := multihash.Sum(k.PubKeyBytes(), multihash.SHA2_256, -1)
	if err != nil {
		// Sum only fails for unknown codes or bad lengths.
		panic(fmt.Errorf("BUG: failed to hash public key: %w", err))
	}
	return mh.B58String()
}
