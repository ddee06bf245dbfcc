package gcircle

import (
	"context"

	"github.com/gordian-engine/trustcircle/gcrypto"
)

// Peer is a device identity as stored in a circle.
//
// Implementations are expected to be immutable values;
// methods that change a peer return a new Peer.
// See the gpeer package for the standard implementation.
type Peer interface {
	// ID is unique within a circle.
	ID() string

	// PubKey is the device key that signs circles.
	PubKey() gcrypto.PubKey

	// IsRetired reports whether this entry is a retirement ticket,
	// a tombstone left behind by a departed member.
	IsRetired() bool

	// IsCloudIdentity reports whether the peer is the synthetic
	// account identity rather than a device.
	IsCloudIdentity() bool

	// VerifyApplication reports whether the peer's admission proof
	// was signed by userKey.
	VerifyApplication(userKey gcrypto.PubKey) bool

	// ApplicationOutdated reports whether the admission proof
	// uses a scheme older than the current one.
	ApplicationOutdated() bool

	// UpgradeApplication returns a copy of the peer
	// whose admission proof is re-derived with the current scheme.
	UpgradeApplication(ctx context.Context, userSigner gcrypto.Signer) (Peer, error)

	// Equal compares the full serialized identity, not only the ID.
	Equal(other Peer) bool

	// Bytes returns the DER encoding of the peer, a single SEQUENCE element.
	Bytes() []byte

	Clone() Peer
}

// PeerDecoder decodes the output of [Peer.Bytes].
type PeerDecoder interface {
	DecodePeer(b []byte) (Peer, error)
}

// Device is the local device committing circle changes.
type Device interface {
	PeerInfo() Peer

	// DeviceSigner retrieves the device's private key.
	// This may involve a keychain lookup and so may fail.
	DeviceSigner(ctx context.Context) (gcrypto.Signer, error)
}

// StaticDevice is a [Device] whose signer is already in memory.
type StaticDevice struct {
	Info   Peer
	Signer gcrypto.Signer
}

func (d StaticDevice) PeerInfo() Peer {
	return d.Info
}

func (d StaticDevice) DeviceSigner(context.Context) (gcrypto.Signer, error) {
	if d.Signer == nil {
		return nil, ErrBadKey
	}
	return d.Signer, nil
}
