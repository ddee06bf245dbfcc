// Package gpeer contains the standard [gcircle.Peer] implementation.
//
// An [Info] binds a peer ID to a device key.
// To be admitted to a circle, an Info must carry an application:
// a signature by the account's user key over the ID and device key.
// A departing device replaces its entry with a retirement ticket,
// signed by its own device key.
package gpeer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcrypto"
)

// ApplicationScheme identifies how an application signature was derived.
type ApplicationScheme uint8

const (
	// No application present.
	ApplicationNone ApplicationScheme = 0

	// The user key signs only the peer ID.
	ApplicationLegacy ApplicationScheme = 1

	// The user key signs the peer ID and the device key.
	ApplicationCurrent ApplicationScheme = 2
)

var (
	ErrKeyMismatch = errors.New("signer does not match the peer's device key")
	ErrNoRegistry  = errors.New("key registry required")
)

var _ gcircle.Peer = Info{}

// Info is an immutable peer identity.
// Methods that change an Info return a new value.
type Info struct {
	id   string
	name string
	key  gcrypto.PubKey

	retired       bool
	cloudIdentity bool

	scheme      ApplicationScheme
	application []byte
	retirement  []byte

	reg *gcrypto.Registry

	// Cached DER encoding of all the fields above.
	der []byte
}

// Config is the set of values for a new Info.
type Config struct {
	ID   string
	Name string

	Key gcrypto.PubKey

	// Whether this is the synthetic account identity.
	CloudIdentity bool

	// Registry used to serialize Key.
	// Key's type must be registered.
	Registry *gcrypto.Registry
}

// New returns an Info without an application.
func New(cfg Config) (Info, error) {
	if cfg.ID == "" {
		return Info{}, errors.New("peer ID required")
	}
	if cfg.Key == nil {
		return Info{}, gcircle.ErrPublicKeyAbsent
	}
	if cfg.Registry == nil {
		return Info{}, ErrNoRegistry
	}

	i := Info{
		id:   cfg.ID,
		name: cfg.Name,
		key:  cfg.Key,

		cloudIdentity: cfg.CloudIdentity,

		reg: cfg.Registry,
	}
	return i.withEncoding(), nil
}

func (i Info) ID() string             { return i.id }
func (i Info) Name() string           { return i.name }
func (i Info) PubKey() gcrypto.PubKey { return i.key }
func (i Info) IsRetired() bool        { return i.retired }
func (i Info) IsCloudIdentity() bool  { return i.cloudIdentity }

func (i Info) Scheme() ApplicationScheme { return i.scheme }

// Apply returns a copy of i carrying an application signed by userSigner
// with the current scheme.
func (i Info) Apply(ctx context.Context, userSigner gcrypto.Signer) (Info, error) {
	return i.apply(ctx, userSigner, ApplicationCurrent)
}

// ApplyLegacy is like Apply, but uses the legacy scheme.
// It only exists to interoperate with circles written by older devices.
func (i Info) ApplyLegacy(ctx context.Context, userSigner gcrypto.Signer) (Info, error) {
	return i.apply(ctx, userSigner, ApplicationLegacy)
}

func (i Info) apply(ctx context.Context, userSigner gcrypto.Signer, scheme ApplicationScheme) (Info, error) {
	sig, err := userSigner.Sign(ctx, i.applicationMessage(scheme))
	if err != nil {
		return Info{}, fmt.Errorf("failed to sign application for %q: %w", i.id, err)
	}

	out := i.Clone().(Info)
	out.scheme = scheme
	out.application = sig
	return out.withEncoding(), nil
}

func (i Info) applicationMessage(scheme ApplicationScheme) []byte {
	var buf bytes.Buffer
	switch scheme {
	case ApplicationLegacy:
		buf.WriteString("gcircle-application-v1\x00")
		buf.WriteString(i.id)
	case ApplicationCurrent:
		buf.WriteString("gcircle-application-v2\x00")
		buf.WriteString(i.id)
		buf.WriteByte(0)
		buf.WriteString(i.key.TypeName())
		buf.WriteByte(0)
		buf.Write(i.key.PubKeyBytes())
	default:
		panic(fmt.Errorf("BUG: unknown application scheme %d", scheme))
	}
	return buf.Bytes()
}

// VerifyApplication reports whether i's application was signed by userKey,
// under whichever scheme i carries.
func (i Info) VerifyApplication(userKey gcrypto.PubKey) bool {
	if userKey == nil || i.scheme == ApplicationNone {
		return false
	}
	return userKey.Verify(i.applicationMessage(i.scheme), i.application)
}

func (i Info) ApplicationOutdated() bool {
	return i.scheme == ApplicationLegacy
}

func (i Info) UpgradeApplication(ctx context.Context, userSigner gcrypto.Signer) (gcircle.Peer, error) {
	return i.Apply(ctx, userSigner)
}

// Retire returns a retirement ticket for i,
// signed by the device key.
func (i Info) Retire(ctx context.Context, deviceSigner gcrypto.Signer) (Info, error) {
	if deviceSigner == nil || !deviceSigner.PubKey().Equal(i.key) {
		return Info{}, ErrKeyMismatch
	}

	sig, err := deviceSigner.Sign(ctx, i.retirementMessage())
	if err != nil {
		return Info{}, fmt.Errorf("failed to sign retirement for %q: %w", i.id, err)
	}

	out := i.Clone().(Info)
	out.retired = true
	out.retirement = sig
	return out.withEncoding(), nil
}

// VerifyRetirement reports whether i is a retirement ticket
// signed by its own device key.
func (i Info) VerifyRetirement() bool {
	return i.retired && i.key.Verify(i.retirementMessage(), i.retirement)
}

func (i Info) retirementMessage() []byte {
	return append([]byte("gcircle-retirement\x00"), i.id...)
}

// Equal reports whether other serializes identically to i.
func (i Info) Equal(other gcircle.Peer) bool {
	return other != nil && bytes.Equal(i.der, other.Bytes())
}

func (i Info) Bytes() []byte {
	return bytes.Clone(i.der)
}

func (i Info) Clone() gcircle.Peer {
	// The key is immutable once constructed, so sharing it is fine.
	i.application = bytes.Clone(i.application)
	i.retirement = bytes.Clone(i.retirement)
	i.der = bytes.Clone(i.der)
	return i
}

func (i Info) String() string {
	if i.name == "" {
		return i.id
	}
	return fmt.Sprintf("%s (%s)", i.id, i.name)
}
