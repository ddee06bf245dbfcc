// Package gckeeper holds a device's current trusted circle.
//
// A [Keeper] serializes local membership changes,
// decides whether circles received from other devices may replace the current one,
// and persists every accepted circle to a [gcstore.CircleStore].
package gckeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcstore"
)

var ErrNameMismatch = errors.New("proposed circle has a different name")

// Config is the set of values required by [New].
type Config struct {
	Store gcstore.CircleStore

	// Codec for stored and proposed circles.
	// Its clock is also used for a new empty circle.
	Codec gcircle.Codec

	// Name of the circle being kept.
	Name string

	// Account key that every trusted circle must be signed with.
	UserKey gcrypto.PubKey

	// The local device.
	// Its key is the reference key when judging proposals,
	// as it signed every circle this device committed.
	Device gcircle.Device
}

// Keeper holds the current circle for one circle name.
// All methods are safe for concurrent use.
type Keeper struct {
	log *slog.Logger

	store gcstore.CircleStore
	codec gcircle.Codec

	name    string
	userKey gcrypto.PubKey
	device  gcircle.Device

	mu  sync.Mutex
	cur *gcircle.Circle
}

// New returns a Keeper initialized from the circle in cfg.Store,
// or with an empty circle if none is stored.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Keeper, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Device == nil {
		return nil, errors.New("device required")
	}

	k := &Keeper{
		log: log,

		store: cfg.Store,
		codec: cfg.Codec,

		name:    cfg.Name,
		userKey: cfg.UserKey,
		device:  cfg.Device,
	}

	_, data, err := cfg.Store.LoadCircle(ctx, cfg.Name)
	if err != nil {
		var nce gcstore.NoCircleError
		if !errors.As(err, &nce) {
			return nil, fmt.Errorf("failed to load circle %q: %w", cfg.Name, err)
		}

		var opts []gcircle.Option
		if cfg.Codec.Clock != nil {
			opts = append(opts, gcircle.WithClock(cfg.Codec.Clock))
		}
		k.cur = gcircle.NewCircle(cfg.Name, opts...)
		log.Info("Starting with empty circle", "name", cfg.Name)
		return k, nil
	}

	c, err := cfg.Codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored circle %q: %w", cfg.Name, err)
	}
	k.cur = c

	log.Info(
		"Loaded stored circle",
		"name", cfg.Name,
		"generation", c.Generation(),
		"peers", c.CountPeers(),
	)
	return k, nil
}

// Current returns a copy of the current circle.
func (k *Keeper) Current() *gcircle.Circle {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.cur.Clone()
}

// Encoded returns the encoding of the current circle, for publishing.
func (k *Keeper) Encoded() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.codec.Encode(k.cur)
}

// HandleProposal decodes data and replaces the current circle with it
// if [gcircle.ConcordanceTrust] accepts it.
// excludeID is passed through as the peer whose missing signature is excused.
//
// An untrusted proposal returns a *[gcircle.ConcordanceError].
// A proposal equal to the current circle is accepted without writing to the store.
func (k *Keeper) HandleProposal(ctx context.Context, data []byte, excludeID string) error {
	proposed, err := k.codec.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode proposed circle: %w", err)
	}
	if proposed.Name() != k.name {
		return fmt.Errorf("%w: want %q, got %q", ErrNameMismatch, k.name, proposed.Name())
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if proposed.Equal(k.cur) {
		return nil
	}

	knownKey := k.device.PeerInfo().PubKey()
	status := gcircle.ConcordanceTrust(k.cur, proposed, knownKey, k.userKey, excludeID)
	if err := status.Err(); err != nil {
		k.log.Info(
			"Rejected proposed circle",
			"name", k.name,
			"status", status,
			"current_generation", k.cur.Generation(),
			"proposed_generation", proposed.Generation(),
		)
		return err
	}

	if err := k.store.SaveCircle(ctx, k.name, proposed.Generation(), data); err != nil {
		return fmt.Errorf("failed to save accepted circle: %w", err)
	}

	k.log.Debug(
		"Accepted proposed circle",
		"name", k.name,
		"generation", proposed.Generation(),
		"peers", proposed.CountPeers(),
	)
	k.cur = proposed
	return nil
}

// Modify calls fn with a copy of the current circle.
// If fn succeeds, the copy is saved and becomes the current circle,
// and its encoding is returned for publishing.
// If fn or saving fails, the current circle is unchanged.
//
// fn must not call other methods on k.
func (k *Keeper) Modify(ctx context.Context, fn func(*gcircle.Circle) error) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	next := k.cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	data, err := k.codec.Encode(next)
	if err != nil {
		return nil, err
	}

	if err := k.store.SaveCircle(ctx, k.name, next.Generation(), data); err != nil {
		return nil, fmt.Errorf("failed to save modified circle: %w", err)
	}

	k.cur = next
	return data, nil
}
