// Package gcircletest contains fixtures for building signed circles in tests.
package gcircletest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gpeer"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcrypto/gcryptotest"
)

// Start is the time the fixture's mock clock is set to.
var Start = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// PrivPeer is a device peer in a [Fixture],
// along with the signer backing its device key.
type PrivPeer struct {
	Info   gpeer.Info
	Signer gcrypto.Ed25519Signer
}

// Device returns p as a [gcircle.Device].
func (p PrivPeer) Device() gcircle.StaticDevice {
	return gcircle.StaticDevice{Info: p.Info, Signer: p.Signer}
}

// Fixture is a deterministic account: one user key
// and a set of device peers that have all applied with that key.
type Fixture struct {
	Registry *gcrypto.Registry

	UserSigner gcrypto.Ed25519Signer

	Peers []PrivPeer

	Clock *clock.Mock

	// Logger for fixture operations.
	// Defaults to discarding output; tests may set a gtest logger.
	Log *slog.Logger
}

// NewFixture returns a Fixture with nPeers applied device peers,
// whose IDs are "peer-0" through "peer-(n-1)"
// and whose names are "device 0" through "device (n-1)".
func NewFixture(nPeers int) *Fixture {
	signers := gcryptotest.DeterministicEd25519Signers(nPeers + 1)

	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)

	clk := clock.NewMock()
	clk.Set(Start)

	f := &Fixture{
		Registry:   reg,
		UserSigner: signers[0],
		Clock:      clk,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	for i, s := range signers[1:] {
		info, err := gpeer.New(gpeer.Config{
			ID:       fmt.Sprintf("peer-%d", i),
			Name:     fmt.Sprintf("device %d", i),
			Key:      s.PubKey(),
			Registry: reg,
		})
		if err != nil {
			panic(fmt.Errorf("failed to create fixture peer: %w", err))
		}

		info, err = info.Apply(ctx, f.UserSigner)
		if err != nil {
			panic(fmt.Errorf("failed to apply fixture peer: %w", err))
		}

		f.Peers = append(f.Peers, PrivPeer{Info: info, Signer: s})
	}

	return f
}

func (f *Fixture) UserKey() gcrypto.PubKey {
	return f.UserSigner.PubKey()
}

// Codec returns a circle codec that decodes gpeer values
// and stamps decoded circles with the fixture clock.
func (f *Fixture) Codec() gcircle.Codec {
	return gcircle.Codec{
		Peers: gpeer.Codec{Registry: f.Registry},
		Clock: f.Clock,
	}
}

// NewCircle returns an empty circle using the fixture clock.
func (f *Fixture) NewCircle(name string) *gcircle.Circle {
	return gcircle.NewCircle(name, gcircle.WithClock(f.Clock))
}

// CommittedCircle returns a circle founded by the first index in peerIdxs,
// into which every other listed peer has been admitted.
// The result is signed by the user key and the founder's device key.
func (f *Fixture) CommittedCircle(ctx context.Context, name string, peerIdxs ...int) *gcircle.Circle {
	if len(peerIdxs) == 0 {
		panic(fmt.Errorf("BUG: CommittedCircle requires at least one peer"))
	}

	founder := f.Peers[peerIdxs[0]]
	c := f.NewCircle(name)
	if err := c.ResetToOffering(ctx, f.Log, f.UserSigner, founder.Device()); err != nil {
		panic(fmt.Errorf("failed to found circle: %w", err))
	}

	for _, idx := range peerIdxs[1:] {
		if err := c.RequestAdmission(f.UserKey(), f.Peers[idx].Info); err != nil {
			panic(fmt.Errorf("failed to request admission: %w", err))
		}
	}

	if len(peerIdxs) > 1 {
		if _, err := c.AcceptRequests(ctx, f.Log, f.UserSigner, founder.Device()); err != nil {
			panic(fmt.Errorf("failed to accept requests: %w", err))
		}
	}

	return c
}

// OtherSigner returns a deterministic signer
// distinct from the fixture's user key and every fixture peer.
func (f *Fixture) OtherSigner(i int) gcrypto.Ed25519Signer {
	n := len(f.Peers) + 1 + i
	return gcryptotest.DeterministicEd25519Signers(n + 1)[n]
}

// NewPeer returns a peer with the given ID and device signer,
// applied with the fixture user key.
func (f *Fixture) NewPeer(ctx context.Context, id string, s gcrypto.Signer, cloudIdentity bool) gpeer.Info {
	info, err := gpeer.New(gpeer.Config{
		ID:            id,
		Key:           s.PubKey(),
		CloudIdentity: cloudIdentity,
		Registry:      f.Registry,
	})
	if err != nil {
		panic(fmt.Errorf("failed to create peer: %w", err))
	}

	info, err = info.Apply(ctx, f.UserSigner)
	if err != nil {
		panic(fmt.Errorf("failed to apply peer: %w", err))
	}
	return info
}
