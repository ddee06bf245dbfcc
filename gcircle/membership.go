package gcircle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/trustcircle/gcrypto"
)

// ResetToEmpty drops every peer, applicant, rejected applicant, and signature,
// and moves the generation to a fresh value greater than the current one.
func (c *Circle) ResetToEmpty() {
	c.peers.Clear()
	c.applicants.Clear()
	c.rejected.Clear()
	c.clearSignatures()

	c.generation = c.generation.Reset(c.clk.Now())
}

// ResetToOffering empties c and re-founds it with the device as its only peer,
// signed by both the user and device keys.
//
// The device's peer info must carry an admission proof signed by userSigner.
func (c *Circle) ResetToOffering(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
) error {
	if userSigner == nil {
		return fmt.Errorf("%w: user signer required", ErrBadKey)
	}

	next := c.Clone()
	next.ResetToEmpty()

	self := device.PeerInfo()
	if err := next.RequestAdmission(userSigner.PubKey(), self); err != nil {
		return fmt.Errorf("failed to apply to offering circle: %w", err)
	}
	if err := next.AcceptRequest(ctx, log, userSigner, device, self); err != nil {
		return fmt.Errorf("failed to accept self into offering circle: %w", err)
	}

	*c = *next
	return nil
}

// RequestAdmission adds p as an applicant,
// removing it from the rejected applicants if necessary.
//
// p must not have an entry in the peer set,
// and its admission proof must verify against userKey.
func (c *Circle) RequestAdmission(userKey gcrypto.PubKey, p Peer) error {
	if userKey == nil {
		return ErrPublicKeyAbsent
	}

	id := p.ID()
	if c.peers.Contains(id) {
		return fmt.Errorf("cannot request admission for %q: %w", id, ErrAlreadyPeer)
	}
	if !p.VerifyApplication(userKey) {
		return fmt.Errorf("admission proof for %q does not verify: %w", id, ErrBadSignature)
	}

	c.rejected.Remove(id)
	c.applicants.Add(p)
	return nil
}

// RequestReadmission refreshes p's entry if it is already a peer,
// and otherwise requests admission,
// replacing any retirement ticket p left behind.
func (c *Circle) RequestReadmission(userKey gcrypto.PubKey, p Peer) error {
	if userKey == nil {
		return ErrPublicKeyAbsent
	}

	id := p.ID()
	if !p.VerifyApplication(userKey) {
		return fmt.Errorf("admission proof for %q does not verify: %w", id, ErrBadSignature)
	}

	if c.HasPeer(id) {
		c.UpdatePeerInfo(p)
		return nil
	}

	// Either unknown, or only a retirement ticket remains.
	if c.peers.Remove(id) {
		c.clearSignatures()
	}
	return c.RequestAdmission(userKey, p)
}

// AcceptRequest moves the applicant p into the peer set and commits with [*Circle.GenerationSign].
// The stored applicant entry must verify against the user key.
func (c *Circle) AcceptRequest(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
	p Peer,
) error {
	if userSigner == nil {
		return fmt.Errorf("%w: user signer required", ErrBadKey)
	}

	id := p.ID()
	applicant, ok := c.applicants.Get(id)
	if !ok {
		return fmt.Errorf("cannot accept %q: %w", id, ErrNotApplicant)
	}
	if !applicant.VerifyApplication(userSigner.PubKey()) {
		return fmt.Errorf("admission proof for %q does not verify: %w", id, ErrBadSignature)
	}

	next := c.Clone()
	next.applicants.Remove(id)
	next.peers.Add(applicant)

	if err := next.GenerationSign(ctx, log, userSigner, device); err != nil {
		return err
	}

	*c = *next
	return nil
}

// AcceptRequests attempts to accept every applicant,
// with a single commit at the end if any were accepted.
// Applicants whose proof does not verify stay in place.
func (c *Circle) AcceptRequests(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
) (accepted int, err error) {
	if userSigner == nil {
		return 0, fmt.Errorf("%w: user signer required", ErrBadKey)
	}
	userKey := userSigner.PubKey()

	next := c.Clone()
	for p := range next.applicants.All() {
		if !p.VerifyApplication(userKey) {
			log.Info(
				"Skipping applicant with unverifiable admission proof",
				"circle", c.name,
				"peer_id", p.ID(),
			)
			continue
		}

		next.applicants.Remove(p.ID())
		next.peers.Add(p)
		accepted++
	}

	if accepted == 0 {
		return 0, nil
	}

	if err := next.GenerationSign(ctx, log, userSigner, device); err != nil {
		return 0, err
	}

	*c = *next
	return accepted, nil
}

// RejectRequest moves the applicant p into the rejected applicants.
// A peer rejecting its own application withdraws it instead.
func (c *Circle) RejectRequest(rejector, p Peer) error {
	if rejector.ID() == p.ID() {
		return c.WithdrawRequest(p)
	}

	id := p.ID()
	applicant, ok := c.applicants.Get(id)
	if !ok {
		return fmt.Errorf("cannot reject %q: %w", id, ErrNotApplicant)
	}

	c.applicants.Remove(id)
	c.rejected.Add(applicant)
	return nil
}

// WithdrawRequest forgets the applicant p.
func (c *Circle) WithdrawRequest(p Peer) error {
	if !c.applicants.Remove(p.ID()) {
		return fmt.Errorf("cannot withdraw %q: %w", p.ID(), ErrNotApplicant)
	}
	return nil
}

// RemovePeer removes target from the peer set and commits with [*Circle.GenerationSign].
// If target is an applicant, its request is rejected instead, without a commit.
//
// The requestor must itself be a peer.
func (c *Circle) RemovePeer(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
	requestor, target Peer,
) error {
	if !c.HasPeer(requestor.ID()) {
		return removalError{msg: fmt.Sprintf("requestor %q cannot remove peers", requestor.ID())}
	}

	id := target.ID()
	if c.applicants.Contains(id) {
		return c.RejectRequest(requestor, target)
	}
	if !c.peers.Contains(id) {
		return removalError{msg: fmt.Sprintf("cannot remove %q", id)}
	}

	next := c.Clone()
	next.peers.Remove(id)

	if err := next.GenerationSign(ctx, log, userSigner, device); err != nil {
		return err
	}

	*c = *next
	return nil
}

// RemovePeers removes every ID in targetIDs with a single commit.
// Applicants among the targets are rejected; unknown IDs are ignored.
// If no peer is removed, no commit happens.
func (c *Circle) RemovePeers(
	ctx context.Context,
	log *slog.Logger,
	userSigner gcrypto.Signer,
	device Device,
	requestor Peer,
	targetIDs []string,
) error {
	if !c.HasPeer(requestor.ID()) {
		return removalError{msg: fmt.Sprintf("requestor %q cannot remove peers", requestor.ID())}
	}

	next := c.Clone()
	removed := 0
	for _, id := range targetIDs {
		if a, ok := next.applicants.Get(id); ok {
			next.applicants.Remove(id)
			next.rejected.Add(a)
			continue
		}
		if next.peers.Remove(id) {
			removed++
		}
	}

	if removed > 0 {
		if err := next.GenerationSign(ctx, log, userSigner, device); err != nil {
			return err
		}
	}

	*c = *next
	return nil
}

// RemoveRejectedPeer forgets a rejected applicant.
// It is a no-op, returning false, if id was not rejected.
func (c *Circle) RemoveRejectedPeer(id string) bool {
	return c.rejected.Remove(id)
}

// UpdatePeerInfo replaces the peer or applicant entry with p's ID
// if its serialized form differs, such as when installing a retirement ticket.
// It reports whether c changed.
//
// Signatures are kept unless a peer's public key changed,
// since only peer public keys contribute to [*Circle.Hash].
func (c *Circle) UpdatePeerInfo(p Peer) bool {
	id := p.ID()
	for _, set := range []*PeerSet{&c.peers, &c.applicants} {
		cur, ok := set.Get(id)
		if !ok {
			continue
		}
		if bytes.Equal(cur.Bytes(), p.Bytes()) {
			return false
		}
		set.Add(p)
		if set == &c.peers && !cur.PubKey().Equal(p.PubKey()) {
			c.clearSignatures()
		}
		return true
	}
	return false
}

// MergePeerUpdates replaces each entry of c's peer set
// with the entry of the same ID in other, when they serialize differently.
// Peers present only in other are not added.
// It reports whether c changed.
func (c *Circle) MergePeerUpdates(other *Circle) bool {
	changed := false
	for p := range other.peers.All() {
		cur, ok := c.peers.Get(p.ID())
		if !ok || bytes.Equal(cur.Bytes(), p.Bytes()) {
			continue
		}
		c.peers.Add(p.Clone())
		changed = true
	}
	return changed
}
