package gpeer

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const infoDERVersion = 1

// The DER form of an Info:
//
//	PeerInfo ::= SEQUENCE {
//	  version       INTEGER,
//	  id            UTF8String,
//	  name          UTF8String,
//	  key           OCTET STRING, -- registry-prefixed
//	  retired       BOOLEAN,
//	  cloudIdentity BOOLEAN,
//	  scheme        INTEGER,
//	  application   OCTET STRING,
//	  retirement    OCTET STRING
//	}
func (i Info) withEncoding() Info {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(infoDERVersion)
		addUTF8String(b, i.id)
		addUTF8String(b, i.name)
		b.AddASN1OctetString(i.reg.Marshal(i.key))
		b.AddASN1Boolean(i.retired)
		b.AddASN1Boolean(i.cloudIdentity)
		b.AddASN1Int64(int64(i.scheme))
		b.AddASN1OctetString(i.application)
		b.AddASN1OctetString(i.retirement)
	})

	// The builder only fails on programmer error, such as a bad length.
	i.der = b.BytesOrPanic()
	return i
}

// Codec decodes Info values, satisfying [gcircle.PeerDecoder].
type Codec struct {
	Registry *gcrypto.Registry
}

var _ gcircle.PeerDecoder = Codec{}

func (c Codec) DecodePeer(b []byte) (gcircle.Peer, error) {
	return c.Decode(b)
}

func (c Codec) Decode(b []byte) (Info, error) {
	if c.Registry == nil {
		return Info{}, ErrNoRegistry
	}

	in := cryptobyte.String(b)

	var seq cryptobyte.String
	if !in.ReadASN1(&seq, asn1.SEQUENCE) || !in.Empty() {
		return Info{}, errors.New("expected a single SEQUENCE")
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return Info{}, errors.New("missing version")
	}
	if version != infoDERVersion {
		return Info{}, fmt.Errorf("unsupported peer info version %d", version)
	}

	var (
		id, name    cryptobyte.String
		keyBytes    []byte
		scheme      int64
		application []byte
		retirement  []byte

		i = Info{reg: c.Registry}
	)
	if !seq.ReadASN1(&id, asn1.UTF8String) || !utf8.Valid(id) ||
		!seq.ReadASN1(&name, asn1.UTF8String) || !utf8.Valid(name) ||
		!seq.ReadASN1Bytes(&keyBytes, asn1.OCTET_STRING) ||
		!seq.ReadASN1Boolean(&i.retired) ||
		!seq.ReadASN1Boolean(&i.cloudIdentity) ||
		!seq.ReadASN1Integer(&scheme) ||
		!seq.ReadASN1Bytes(&application, asn1.OCTET_STRING) ||
		!seq.ReadASN1Bytes(&retirement, asn1.OCTET_STRING) ||
		!seq.Empty() {
		return Info{}, errors.New("malformed peer info")
	}

	if len(id) == 0 {
		return Info{}, errors.New("empty peer ID")
	}
	if scheme < int64(ApplicationNone) || scheme > int64(ApplicationCurrent) {
		return Info{}, fmt.Errorf("unknown application scheme %d", scheme)
	}

	key, err := c.Registry.Unmarshal(keyBytes)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode device key: %w", err)
	}

	i.id = string(id)
	i.name = string(name)
	i.key = key
	i.scheme = ApplicationScheme(scheme)
	if len(application) > 0 {
		i.application = bytes.Clone(application)
	}
	if len(retirement) > 0 {
		i.retirement = bytes.Clone(retirement)
	}

	return i.withEncoding(), nil
}

func addUTF8String(b *cryptobyte.Builder, s string) {
	b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}
