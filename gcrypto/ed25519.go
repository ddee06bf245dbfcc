package gcrypto

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
)

const ed25519TypeName = "ed25519"

// RegisterEd25519 registers ed25519 with the given Registry.
// There is no global registry; it is the caller's responsibility
// to register as needed.
func RegisterEd25519(reg *Registry) {
	reg.Register(ed25519TypeName, Ed25519PubKey{}, NewEd25519PubKey)
}

type Ed25519PubKey ed25519.PublicKey

func NewEd25519PubKey(b []byte) (PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d ed25519 public key bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return Ed25519PubKey(bytes.Clone(b)), nil
}

func (e Ed25519PubKey) PubKeyBytes() []byte {
	return e
}

func (e Ed25519PubKey) Verify(msg, sig []byte) bool {
	if len(e) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(e), msg, sig)
}

func (e Ed25519PubKey) Equal(other PubKey) bool {
	o, ok := other.(Ed25519PubKey)
	if !ok {
		return false
	}

	return bytes.Equal(e, o)
}

func (Ed25519PubKey) TypeName() string {
	return ed25519TypeName
}

// Ed25519Signer satisfies [Signer] with an in-memory ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  Ed25519PubKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{
		priv: priv,
		pub:  Ed25519PubKey(priv.Public().(ed25519.PublicKey)),
	}
}

// NewEd25519SignerFromSeed derives the signer from a 32-byte seed,
// which is the form the CLI stores keys in.
func NewEd25519SignerFromSeed(seed []byte) (Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return Ed25519Signer{}, fmt.Errorf("expected %d seed bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
}

func (s Ed25519Signer) PubKey() PubKey {
	return s.pub
}

func (s Ed25519Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, input), nil
}

// Seed returns the private seed, for persisting the key.
func (s Ed25519Signer) Seed() []byte {
	return s.priv.Seed()
}
