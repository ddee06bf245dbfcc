package gcircle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/trustcircle/gcrypto"
)

// Hash returns the digest that circle signatures cover:
// SHA-256 over the big-endian generation
// followed by a SHA-256 over the public keys of the peer set in ID order.
//
// Applicants, rejected applicants, and existing signatures do not affect the hash.
func (c *Circle) Hash() []byte {
	inner := sha256.New()
	for p := range c.peers.All() {
		inner.Write(p.PubKey().PubKeyBytes())
	}

	outer := sha256.New()
	var gen [8]byte
	binary.BigEndian.PutUint64(gen[:], uint64(c.generation))
	outer.Write(gen[:])
	outer.Write(inner.Sum(nil))
	return outer.Sum(nil)
}

// Signatures returns a copy of the signature map, keyed by [gcrypto.KeyID].
func (c *Circle) Signatures() map[string][]byte {
	out := make(map[string][]byte, len(c.signatures))
	for k, v := range c.signatures {
		out[k] = bytes.Clone(v)
	}
	return out
}

// Sign signs the current hash of c with s,
// replacing any existing signature from the same key.
func (c *Circle) Sign(ctx context.Context, s gcrypto.Signer) error {
	if s == nil {
		return ErrBadKey
	}

	sig, err := s.Sign(ctx, c.Hash())
	if err != nil {
		return fmt.Errorf("%w: failed to sign circle %q: %w", ErrBadSignature, c.name, err)
	}

	c.signatures[gcrypto.KeyID(s.PubKey())] = sig
	return nil
}

// Verify reports whether c carries a valid signature from k.
func (c *Circle) Verify(k gcrypto.PubKey) bool {
	if k == nil {
		return false
	}

	sig, ok := c.signatures[gcrypto.KeyID(k)]
	if !ok {
		return false
	}
	return k.Verify(c.Hash(), sig)
}

// HasSignature reports whether c carries any signature from k,
// without checking it.
// This distinguishes a missing signature from an invalid one.
func (c *Circle) HasSignature(k gcrypto.PubKey) bool {
	if k == nil {
		return false
	}
	_, ok := c.signatures[gcrypto.KeyID(k)]
	return ok
}

// VerifyPeerSigned reports whether c carries a valid signature
// from p's device key.
func (c *Circle) VerifyPeerSigned(p Peer) bool {
	return c.Verify(p.PubKey())
}

// clearSignatures drops every signature.
// It must be called after any change to the generation or peer set.
func (c *Circle) clearSignatures() {
	clear(c.signatures)
}

// GenerationSign commits the current peer set:
// outdated admission proofs are upgraded, retirement tickets are pruned,
// rejected applicants are forgotten, applicants whose proof no longer verifies are rejected,
// the generation is incremented, and c is re-signed
// by both userSigner and the device key.
//
// If the device key cannot be retrieved or either signature fails,
// c is left unchanged.
func (c *Circle) GenerationSign(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
) error {
	if userSigner == nil {
		return fmt.Errorf("%w: user signer required", ErrBadKey)
	}

	deviceSigner, err := device.DeviceSigner(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to retrieve device key: %w", ErrBadKey, err)
	}

	userKey := userSigner.PubKey()
	next := c.Clone()

	next.upgradeApplications(ctx, log, &next.peers, userSigner)
	next.upgradeApplications(ctx, log, &next.applicants, userSigner)

	for p := range next.peers.Filter(Peer.IsRetired) {
		next.peers.Remove(p.ID())
	}

	next.rejected.Clear()

	for p := range next.applicants.Filter(func(p Peer) bool {
		return !p.VerifyApplication(userKey)
	}) {
		next.applicants.Remove(p.ID())
		next.rejected.Add(p)
	}

	next.generation = next.generation.Next(next.clk.Now())
	next.clearSignatures()

	if err := next.Sign(ctx, userSigner); err != nil {
		return fmt.Errorf("failed to sign with user key: %w", err)
	}
	if err := next.Sign(ctx, deviceSigner); err != nil {
		return fmt.Errorf("failed to sign with device key: %w", err)
	}

	*c = *next
	return nil
}

// upgradeApplications replaces every peer in set whose admission proof
// uses an outdated scheme, but still verifies, with an upgraded copy.
// Failures are logged and the original entry is kept.
func (c *Circle) upgradeApplications(
	ctx context.Context,
	log *slog.Logger,
	set *PeerSet,
	userSigner gcrypto.Signer,
) {
	userKey := userSigner.PubKey()

	var upgraded []Peer
	for p := range set.Filter(Peer.ApplicationOutdated) {
		if !p.VerifyApplication(userKey) {
			continue
		}

		u, err := p.UpgradeApplication(ctx, userSigner)
		if err != nil {
			log.Warn(
				"Failed to upgrade admission proof",
				"circle", c.name,
				"peer_id", p.ID(),
				"err", err,
			)
			continue
		}

		upgraded = append(upgraded, u)
	}

	for _, u := range upgraded {
		set.Add(u)
	}
}
