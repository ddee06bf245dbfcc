package gcircle

import (
	"bytes"
	"iter"
	"maps"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/trustcircle/gcrypto"
)

// Circle is the membership record of a sync group.
//
// Invariant: a peer ID appears in at most one of
// the peers, applicants, and rejected applicants sets.
type Circle struct {
	name       string
	generation Generation

	peers      PeerSet
	applicants PeerSet
	rejected   PeerSet

	// KeyID -> signature over Hash().
	signatures map[string][]byte

	clk clock.Clock
}

// Option customizes a new Circle.
type Option func(*Circle)

// WithClock sets the clock used to derive generation epochs.
// Tests use [clock.NewMock] to freeze or rewind time.
func WithClock(clk clock.Clock) Option {
	return func(c *Circle) {
		c.clk = clk
	}
}

// NewCircle returns an empty circle with the given name.
func NewCircle(name string, opts ...Option) *Circle {
	c := &Circle{
		name:       name,
		signatures: make(map[string][]byte),
		clk:        clock.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Circle) Name() string {
	return c.name
}

func (c *Circle) Generation() Generation {
	return c.generation
}

// Clone returns a deep copy of c.
// The copy is fully independent and may be passed to another goroutine.
func (c *Circle) Clone() *Circle {
	sigs := make(map[string][]byte, len(c.signatures))
	for k, v := range c.signatures {
		sigs[k] = bytes.Clone(v)
	}

	return &Circle{
		name:       c.name,
		generation: c.generation,

		peers:      c.peers.Clone(),
		applicants: c.applicants.Clone(),
		rejected:   c.rejected.Clone(),

		signatures: sigs,

		clk: c.clk,
	}
}

// Equal reports whether c and o have the same generation,
// the same signatures, and the same members in each peer set.
// Peer sets are compared as unordered sets. The name is not compared.
func (c *Circle) Equal(o *Circle) bool {
	if c.generation != o.generation {
		return false
	}
	if !maps.EqualFunc(c.signatures, o.signatures, bytes.Equal) {
		return false
	}
	return c.peers.Equal(o.peers) &&
		c.applicants.Equal(o.applicants) &&
		c.rejected.Equal(o.rejected)
}

// IsEmpty reports whether c has no peers at all,
// as in the bootstrap circle.
func (c *Circle) IsEmpty() bool {
	return c.peers.Len() == 0
}

// IsOffering reports whether c has exactly one peer,
// as in a circle founding a new sync group.
func (c *Circle) IsOffering() bool {
	return c.peers.Len() == 1
}

func isPlainPeer(p Peer) bool {
	return !p.IsRetired() && !p.IsCloudIdentity()
}

// Peers iterates over the members that are neither retirement tickets
// nor the cloud identity.
func (c *Circle) Peers() iter.Seq[Peer] {
	return c.peers.Filter(isPlainPeer)
}

// ActivePeers iterates over every entry of the peer set.
func (c *Circle) ActivePeers() iter.Seq[Peer] {
	return c.peers.All()
}

// ActiveValidPeers iterates over the active peers
// whose admission proof verifies against userKey.
func (c *Circle) ActiveValidPeers(userKey gcrypto.PubKey) iter.Seq[Peer] {
	return c.peers.Filter(func(p Peer) bool {
		return userKey != nil && p.VerifyApplication(userKey)
	})
}

func (c *Circle) Applicants() iter.Seq[Peer] {
	return c.applicants.All()
}

func (c *Circle) RejectedApplicants() iter.Seq[Peer] {
	return c.rejected.All()
}

// HasPeer reports whether id is a member and not a retirement ticket.
func (c *Circle) HasPeer(id string) bool {
	p, ok := c.peers.Get(id)
	return ok && !p.IsRetired()
}

// HasActivePeer reports whether id has any entry in the peer set.
func (c *Circle) HasActivePeer(id string) bool {
	return c.peers.Contains(id)
}

// HasActiveValidPeer reports whether id is in the peer set
// with an admission proof verifying against userKey.
func (c *Circle) HasActiveValidPeer(id string, userKey gcrypto.PubKey) bool {
	p, ok := c.peers.Get(id)
	return ok && userKey != nil && p.VerifyApplication(userKey)
}

func (c *Circle) HasApplicant(id string) bool {
	return c.applicants.Contains(id)
}

func (c *Circle) HasRejectedApplicant(id string) bool {
	return c.rejected.Contains(id)
}

// Peer returns the entry of the peer set with the given ID.
func (c *Circle) Peer(id string) (Peer, bool) {
	return c.peers.Get(id)
}

func (c *Circle) CountPeers() int {
	n := 0
	for range c.Peers() {
		n++
	}
	return n
}

func (c *Circle) CountActivePeers() int {
	return c.peers.Len()
}

func (c *Circle) CountRetiredPeers() int {
	n := 0
	for range c.peers.Filter(Peer.IsRetired) {
		n++
	}
	return n
}

func (c *Circle) CountApplicants() int {
	return c.applicants.Len()
}

func (c *Circle) CountRejectedApplicants() int {
	return c.rejected.Len()
}

// MembershipState is the standing of a single peer ID in a circle.
type MembershipState uint8

const (
	StateUnknown MembershipState = iota
	StateApplicant
	StatePeer
	StateRejected
)

func (s MembershipState) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateApplicant:
		return "Applicant"
	case StatePeer:
		return "Peer"
	case StateRejected:
		return "Rejected"
	default:
		return "MembershipState(?)"
	}
}

// State returns the standing of id in c.
func (c *Circle) State(id string) MembershipState {
	switch {
	case c.peers.Contains(id):
		return StatePeer
	case c.applicants.Contains(id):
		return StateApplicant
	case c.rejected.Contains(id):
		return StateRejected
	default:
		return StateUnknown
	}
}
