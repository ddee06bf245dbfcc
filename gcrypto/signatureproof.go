package gcrypto

import (
	"bytes"
	"errors"
	"maps"

	"github.com/bits-and-blooms/bitset"
)

var (
	ErrUnknownKey       = errors.New("public key not among candidate keys")
	ErrInvalidSignature = errors.New("signature does not verify")
)

// SignatureProof tracks which of a fixed list of candidate keys
// have a verified signature over a single common message.
//
// The candidate keys are fixed at construction,
// and the bit set produced by SignatureBitSet is indexed by candidate position.
// A SignatureProof is not safe for concurrent use; use Clone to hand off a read-only view.
type SignatureProof struct {
	msg []byte

	// KeyID -> signature bytes.
	sigs map[string][]byte

	keys []PubKey

	// KeyID -> index in keys.
	keyIdxs map[string]int

	bitset *bitset.BitSet
}

// SignatureProofMergeResult summarizes a call to [SignatureProof.MergeKeyed].
type SignatureProofMergeResult struct {
	// Every provided signature belonging to a candidate key verified.
	AllValidSignatures bool

	// At least one new signature was accepted.
	IncreasedSignatures bool

	// Candidate indices whose provided signature failed verification.
	// Never nil.
	Invalid *bitset.BitSet
}

func NewSignatureProof(msg []byte, candidateKeys []PubKey) SignatureProof {
	keyIdxs := make(map[string]int, len(candidateKeys))
	for i, k := range candidateKeys {
		keyIdxs[KeyID(k)] = i
	}

	return SignatureProof{
		msg:     msg,
		sigs:    make(map[string][]byte),
		keys:    candidateKeys,
		keyIdxs: keyIdxs,

		bitset: bitset.New(uint(len(candidateKeys))),
	}
}

func (p SignatureProof) Message() []byte {
	return p.msg
}

// AddSignature adds a signature representing a single key.
//
// If the signature does not match, or if the public key was not one of the candidate keys,
// an error is returned and the proof is unchanged.
func (p SignatureProof) AddSignature(sig []byte, key PubKey) error {
	id := KeyID(key)
	keyIdx, ok := p.keyIdxs[id]
	if !ok {
		return ErrUnknownKey
	}
	if !key.Verify(p.msg, sig) {
		return ErrInvalidSignature
	}

	p.sigs[id] = bytes.Clone(sig)
	p.bitset.Set(uint(keyIdx))
	return nil
}

// MergeKeyed verifies every signature in sigs,
// keyed by [KeyID], that belongs to a candidate key.
// Entries for non-candidate keys are ignored.
//
// The sigs map is assumed to be untrusted.
func (p SignatureProof) MergeKeyed(sigs map[string][]byte) SignatureProofMergeResult {
	res := SignatureProofMergeResult{
		// Assume all signatures are valid until we encounter an invalid one.
		AllValidSignatures: true,

		Invalid: bitset.New(uint(len(p.keys))),
	}

	for i, k := range p.keys {
		id := KeyID(k)
		sig, ok := sigs[id]
		if !ok {
			continue
		}

		if cur, have := p.sigs[id]; have && bytes.Equal(cur, sig) {
			continue
		}

		if err := p.AddSignature(sig, k); err != nil {
			res.AllValidSignatures = false
			res.Invalid.Set(uint(i))
			continue
		}

		res.IncreasedSignatures = true
	}

	return res
}

// HasSignature reports whether a verified signature for key is in the proof.
func (p SignatureProof) HasSignature(key PubKey) bool {
	idx, ok := p.keyIdxs[KeyID(key)]
	if !ok {
		return false
	}
	return p.bitset.Test(uint(idx))
}

// SignatureBitSet writes the proof's underlying bit set
// to the given destination bit set.
//
// By having the caller provide the bit set,
// the caller controls allocations for the bitset.
func (p SignatureProof) SignatureBitSet(dst *bitset.BitSet) {
	p.bitset.CopyFull(dst)
}

func (p SignatureProof) Clone() SignatureProof {
	sigs := make(map[string][]byte, len(p.sigs))
	for k, v := range p.sigs {
		sigs[k] = bytes.Clone(v)
	}

	return SignatureProof{
		msg: bytes.Clone(p.msg),

		sigs: sigs,

		// Okay to share the candidate keys; they are never modified.
		keys: p.keys,

		keyIdxs: maps.Clone(p.keyIdxs),

		bitset: p.bitset.Clone(),
	}
}
