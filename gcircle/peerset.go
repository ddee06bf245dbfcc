package gcircle

import (
	"cmp"
	"iter"
	"slices"

	"github.com/gordian-engine/trustcircle/gcrypto"
)

// PeerSet is a set of peers keyed by peer ID.
//
// The zero value is an empty set ready to use.
// Iteration is always in ascending ID order.
type PeerSet struct {
	m map[string]Peer
}

// NewPeerSet returns a set containing peers.
// Later entries replace earlier entries with the same ID.
func NewPeerSet(peers ...Peer) PeerSet {
	s := PeerSet{m: make(map[string]Peer, len(peers))}
	for _, p := range peers {
		s.m[p.ID()] = p
	}
	return s
}

func (s PeerSet) Len() int {
	return len(s.m)
}

// Get returns the peer with the given ID, if present.
func (s PeerSet) Get(id string) (Peer, bool) {
	p, ok := s.m[id]
	return p, ok
}

func (s PeerSet) Contains(id string) bool {
	_, ok := s.m[id]
	return ok
}

// Add inserts p, replacing any existing peer with the same ID.
func (s *PeerSet) Add(p Peer) {
	if s.m == nil {
		s.m = make(map[string]Peer)
	}
	s.m[p.ID()] = p
}

// Remove deletes the peer with the given ID,
// reporting whether it was present.
func (s *PeerSet) Remove(id string) bool {
	if _, ok := s.m[id]; !ok {
		return false
	}
	delete(s.m, id)
	return true
}

// Clear removes every peer.
func (s *PeerSet) Clear() {
	clear(s.m)
}

// All returns a restartable iterator over the set in ID order.
//
// Each iteration walks a snapshot taken when it starts,
// so the set may be modified from within the loop.
func (s PeerSet) All() iter.Seq[Peer] {
	return func(yield func(Peer) bool) {
		for _, p := range s.sorted() {
			if !yield(p) {
				return
			}
		}
	}
}

// Filter returns an iterator over the peers for which keep returns true.
func (s PeerSet) Filter(keep func(Peer) bool) iter.Seq[Peer] {
	return func(yield func(Peer) bool) {
		for _, p := range s.sorted() {
			if keep(p) && !yield(p) {
				return
			}
		}
	}
}

// sorted returns the peers ordered by ID, then by key ID.
func (s PeerSet) sorted() []Peer {
	out := make([]Peer, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Peer) int {
		if c := cmp.Compare(a.ID(), b.ID()); c != 0 {
			return c
		}
		return cmp.Compare(gcrypto.KeyID(a.PubKey()), gcrypto.KeyID(b.PubKey()))
	})
	return out
}

// Clone returns a deep copy of s.
func (s PeerSet) Clone() PeerSet {
	out := PeerSet{m: make(map[string]Peer, len(s.m))}
	for id, p := range s.m {
		out.m[id] = p.Clone()
	}
	return out
}

// Equal reports whether s and o hold the same peers,
// independent of insertion order.
func (s PeerSet) Equal(o PeerSet) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for id, p := range s.m {
		op, ok := o.m[id]
		if !ok || !p.Equal(op) {
			return false
		}
	}
	return true
}
