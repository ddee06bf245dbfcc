package gcircle

import (
	"bytes"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	circleDERVersion = 1

	// Never accepted by any decoder.
	incompatibleCircleDERVersion = 0
)

// Codec converts circles to and from their DER envelope:
//
//	Circle ::= SEQUENCE {
//	  version            INTEGER,
//	  name               UTF8String,
//	  generation         INTEGER,
//	  peers              SEQUENCE OF PeerInfo,
//	  applicants         SEQUENCE OF PeerInfo,
//	  rejectedApplicants SEQUENCE OF PeerInfo,
//	  signatures         SEQUENCE OF SEQUENCE { keyID UTF8String, sig OCTET STRING }
//	}
//
// Signature entries are written in key ID order.
type Codec struct {
	// Decodes each PeerInfo element.
	Peers PeerDecoder

	// Clock for decoded circles; defaults to the wall clock.
	Clock clock.Clock
}

func (Codec) Encode(c *Circle) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(circleDERVersion)
		addUTF8String(b, c.name)
		b.AddASN1Uint64(uint64(c.generation))

		addPeerSet(b, c.peers)
		addPeerSet(b, c.applicants)
		addPeerSet(b, c.rejected)

		ids := make([]string, 0, len(c.signatures))
		for id := range c.signatures {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, id := range ids {
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					addUTF8String(b, id)
					b.AddASN1OctetString(c.signatures[id])
				})
			}
		})
	})

	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode circle %q: %w", c.name, err)
	}
	return out, nil
}

// EncodeIncompatible returns an envelope holding only a version
// that no decoder accepts.
// Peers that can only parse the envelope header use it to detect version skew.
func (Codec) EncodeIncompatible() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(incompatibleCircleDERVersion)
	})
	return b.Bytes()
}

func (cd Codec) Decode(data []byte) (*Circle, error) {
	in := cryptobyte.String(data)

	var seq cryptobyte.String
	if !in.ReadASN1(&seq, asn1.SEQUENCE) || !in.Empty() {
		return nil, fmt.Errorf("%w: expected a single SEQUENCE", ErrBadFormat)
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return nil, fmt.Errorf("%w: missing version", ErrBadFormat)
	}
	if version != circleDERVersion {
		return nil, fmt.Errorf("%w: version %d", ErrIncompatibleCircle, version)
	}

	var nameBytes cryptobyte.String
	if !seq.ReadASN1(&nameBytes, asn1.UTF8String) || !utf8.Valid(nameBytes) {
		return nil, fmt.Errorf("%w: bad name", ErrBadFormat)
	}

	var gen uint64
	if !seq.ReadASN1Integer(&gen) {
		return nil, fmt.Errorf("%w: bad generation", ErrBadFormat)
	}

	clk := cd.Clock
	if clk == nil {
		clk = clock.New()
	}
	c := NewCircle(string(nameBytes), WithClock(clk))
	c.generation = Generation(gen)

	seen := make(map[string]struct{})
	for _, dst := range []*PeerSet{&c.peers, &c.applicants, &c.rejected} {
		if err := cd.readPeerSet(&seq, dst, seen); err != nil {
			return nil, err
		}
	}

	var sigs cryptobyte.String
	if !seq.ReadASN1(&sigs, asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: bad signatures", ErrBadFormat)
	}
	for !sigs.Empty() {
		var entry, id cryptobyte.String
		var sig []byte
		if !sigs.ReadASN1(&entry, asn1.SEQUENCE) ||
			!entry.ReadASN1(&id, asn1.UTF8String) ||
			!entry.ReadASN1Bytes(&sig, asn1.OCTET_STRING) ||
			!entry.Empty() {
			return nil, fmt.Errorf("%w: bad signature entry", ErrBadFormat)
		}
		if _, dup := c.signatures[string(id)]; dup {
			return nil, fmt.Errorf("%w: duplicate signature for key %q", ErrBadFormat, id)
		}
		c.signatures[string(id)] = bytes.Clone(sig)
	}

	if !seq.Empty() {
		return nil, fmt.Errorf("%w: trailing data", ErrBadFormat)
	}

	return c, nil
}

// readPeerSet reads one SEQUENCE OF PeerInfo into dst.
// IDs already in seen, from this or an earlier set, are rejected.
func (cd Codec) readPeerSet(seq *cryptobyte.String, dst *PeerSet, seen map[string]struct{}) error {
	var set cryptobyte.String
	if !seq.ReadASN1(&set, asn1.SEQUENCE) {
		return fmt.Errorf("%w: bad peer set", ErrBadFormat)
	}

	for !set.Empty() {
		var elem cryptobyte.String
		if !set.ReadASN1Element(&elem, asn1.SEQUENCE) {
			return fmt.Errorf("%w: bad peer element", ErrBadFormat)
		}

		p, err := cd.Peers.DecodePeer(elem)
		if err != nil {
			return fmt.Errorf("%w: failed to decode peer: %w", ErrBadFormat, err)
		}

		if _, dup := seen[p.ID()]; dup {
			return fmt.Errorf("%w: peer %q appears more than once", ErrBadFormat, p.ID())
		}
		seen[p.ID()] = struct{}{}

		dst.Add(p)
	}

	return nil
}

func addPeerSet(b *cryptobyte.Builder, s PeerSet) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for p := range s.All() {
			b.AddBytes(p.Bytes())
		}
	})
}

func addUTF8String(b *cryptobyte.Builder, s string) {
	b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}
