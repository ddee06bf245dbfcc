package gcircle

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/trustcircle/gcrypto"
)

// Concordance is the outcome of [ConcordanceTrust].
// Only ConcordanceTrusted authorizes replacing the known circle.
type Concordance uint8

const (
	ConcordanceTrusted Concordance = iota

	// The proposed circle is older than the known circle.
	ConcordanceGenOld

	ConcordanceNoUserKey
	ConcordanceNoUserSig
	ConcordanceBadUserSig

	// None of the signers is a valid peer of the proposed circle.
	ConcordanceNoPeer

	// Some signer is a valid peer of the proposed circle, but none signed it.
	ConcordanceNoPeerSig

	// Some signer's signature on the proposed circle is invalid, and none is valid.
	ConcordanceBadPeerSig
)

func (c Concordance) String() string {
	switch c {
	case ConcordanceTrusted:
		return "Trusted"
	case ConcordanceGenOld:
		return "GenOld"
	case ConcordanceNoUserKey:
		return "NoUserKey"
	case ConcordanceNoUserSig:
		return "NoUserSig"
	case ConcordanceBadUserSig:
		return "BadUserSig"
	case ConcordanceNoPeer:
		return "NoPeer"
	case ConcordanceNoPeerSig:
		return "NoPeerSig"
	case ConcordanceBadPeerSig:
		return "BadPeerSig"
	default:
		return fmt.Sprintf("Concordance(%d)", uint8(c))
	}
}

// Err returns nil for ConcordanceTrusted, and a *ConcordanceError otherwise.
func (c Concordance) Err() error {
	if c == ConcordanceTrusted {
		return nil
	}
	return &ConcordanceError{Status: c}
}

// ConcordanceError reports a proposed circle that was not trusted.
type ConcordanceError struct {
	Status Concordance
}

func (e *ConcordanceError) Error() string {
	return "proposed circle not trusted: " + e.Status.String()
}

// signerRank orders per-signer statuses for combining;
// a higher rank wins.
func signerRank(c Concordance) int {
	switch c {
	case ConcordanceTrusted:
		return 3
	case ConcordanceBadPeerSig:
		return 2
	case ConcordanceNoPeerSig:
		return 1
	default:
		return 0
	}
}

func combineSignerStatus(a, b Concordance) Concordance {
	if signerRank(b) > signerRank(a) {
		return b
	}
	return a
}

// ConcordanceReport is the detailed result of [ConcordanceTrustReport].
type ConcordanceReport struct {
	Status Concordance

	// The key the known circle was checked against when choosing signers.
	// Nil if the decision was made before that step.
	RefKey gcrypto.PubKey

	// Signers are the peers whose signatures were counted, in ID order.
	// Nil if the decision was made before that step.
	Signers []Peer

	// Per-signer outcome, indexed like Signers.
	// A signer appears in exactly one of these sets.
	Trusted, BadPeerSig, NoPeerSig, NoPeer *bitset.BitSet
}

// ConcordanceTrust decides whether proposed, received from an untrusted source,
// may replace known.
//
// knownKey is the device key that was previously trusted to sign known, and may be nil.
// userKey is the account key; without it nothing is trusted.
// A missing signature from the peer with excludeID (for example, a peer removing itself)
// is not held against proposed, except when proposed founds a group;
// pass the empty string to exclude nobody.
//
// Neither circle is modified.
func ConcordanceTrust(known, proposed *Circle, knownKey, userKey gcrypto.PubKey, excludeID string) Concordance {
	return ConcordanceTrustReport(known, proposed, knownKey, userKey, excludeID).Status
}

// ConcordanceTrustReport is like [ConcordanceTrust],
// but also reports how each signer contributed to the decision.
func ConcordanceTrustReport(known, proposed *Circle, knownKey, userKey gcrypto.PubKey, excludeID string) ConcordanceReport {
	if userKey == nil {
		return ConcordanceReport{Status: ConcordanceNoUserKey}
	}

	if proposed.IsEmpty() {
		return ConcordanceReport{Status: ConcordanceTrusted}
	}

	if !proposed.HasSignature(userKey) {
		return ConcordanceReport{Status: ConcordanceNoUserSig}
	}
	if !proposed.Verify(userKey) {
		return ConcordanceReport{Status: ConcordanceBadUserSig}
	}

	if known.IsEmpty() || proposed.IsOffering() {
		// Founding a group: the proposed circle vouches for itself,
		// so no peer is excused from signing.
		return signersStatus(proposed, proposed, userKey, userKey, "")
	}

	if proposed.generation < known.generation {
		return ConcordanceReport{Status: ConcordanceGenOld}
	}

	signers := known
	if !known.Verify(userKey) {
		signers = known.Clone()
		signers.MergePeerUpdates(proposed)
	}

	refKey := knownKey
	if refKey == nil || !signers.Verify(refKey) {
		refKey = userKey
	}

	return signersStatus(signers, proposed, userKey, refKey, excludeID)
}

// signersStatus combines the status of every active peer of signerCircle
// against statusCircle.
func signersStatus(signerCircle, statusCircle *Circle, userKey, refKey gcrypto.PubKey, excludeID string) ConcordanceReport {
	var signers []Peer
	for p := range signerCircle.ActivePeers() {
		signers = append(signers, p)
	}

	keys := make([]gcrypto.PubKey, len(signers))
	for i, p := range signers {
		keys[i] = p.PubKey()
	}

	proof := gcrypto.NewSignatureProof(statusCircle.Hash(), keys)
	merge := proof.MergeKeyed(statusCircle.signatures)

	n := uint(len(signers))
	r := ConcordanceReport{
		Status: ConcordanceNoPeer,
		RefKey: refKey,

		Signers: signers,

		Trusted:    bitset.New(n),
		BadPeerSig: bitset.New(n),
		NoPeerSig:  bitset.New(n),
		NoPeer:     bitset.New(n),
	}

	for i, p := range signers {
		var s Concordance
		switch {
		case !statusCircle.HasActiveValidPeer(p.ID(), userKey):
			s = ConcordanceNoPeer
		case proof.HasSignature(p.PubKey()):
			s = ConcordanceTrusted
		case merge.Invalid.Test(uint(i)):
			s = ConcordanceBadPeerSig
		default:
			s = ConcordanceNoPeerSig
		}

		if s == ConcordanceNoPeerSig && (p.ID() == excludeID || p.IsCloudIdentity()) {
			s = ConcordanceNoPeer
		}

		switch s {
		case ConcordanceTrusted:
			r.Trusted.Set(uint(i))
		case ConcordanceBadPeerSig:
			r.BadPeerSig.Set(uint(i))
		case ConcordanceNoPeerSig:
			r.NoPeerSig.Set(uint(i))
		default:
			r.NoPeer.Set(uint(i))
		}

		r.Status = combineSignerStatus(r.Status, s)
	}

	return r
}
