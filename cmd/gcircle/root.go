package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcircle/gpeer"
	"github.com/gordian-engine/trustcircle/gckeeper"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gcstore/gcsqlite"
	"github.com/gordian-engine/trustcircle/gexternalsigner"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gcircle",
		Short: "Manage the trust circle of this device",

		SilenceUsage: true,
	}

	root.PersistentFlags().String("profile", "profile.toml", "Path to the device profile")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, or error")

	root.AddCommand(
		newKeygenCmd(),
		newFoundCmd(),
		newShowCmd(),
		newTrustCmd(),
		newApplyCmd(),
		newAcceptCmd(),
		newRejectCmd(),
		newRemoveCmd(),
		newAgentCmd(),
	)

	return root
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cmd.Flag("log-level").Value.String())); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// device is everything loaded from a profile.
type device struct {
	Profile Profile

	Registry *gcrypto.Registry

	UserSigner gcrypto.Ed25519Signer

	// Local key, or a connection to the profile's signing agent.
	DeviceSigner gcrypto.Signer

	// Applied with UserSigner.
	Info gpeer.Info
}

func loadDevice(ctx context.Context, profilePath string) (*device, error) {
	p, err := LoadProfile(profilePath)
	if err != nil {
		return nil, err
	}

	user, err := ReadSeed(p.UserKey)
	if err != nil {
		return nil, fmt.Errorf("user key: %w", err)
	}
	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)

	var dev gcrypto.Signer
	if p.DeviceAgent != "" {
		dev, err = gexternalsigner.NewExternalSigner(ctx, p.DeviceAgent, reg)
	} else {
		dev, err = ReadSeed(p.DeviceKey)
	}
	if err != nil {
		return nil, fmt.Errorf("device key: %w", err)
	}

	info, err := gpeer.New(gpeer.Config{
		ID:       p.PeerID,
		Name:     p.Name,
		Key:      dev.PubKey(),
		Registry: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("build peer info: %w", err)
	}

	// Ed25519 signatures are deterministic,
	// so the application is identical on every load.
	info, err = info.Apply(ctx, user)
	if err != nil {
		return nil, err
	}

	return &device{
		Profile:  p,
		Registry: reg,

		UserSigner:   user,
		DeviceSigner: dev,

		Info: info,
	}, nil
}

func (d *device) Device() gcircle.Device {
	if d.Profile.DeviceAgent != "" {
		return gexternalsigner.Device{
			Info:       d.Info,
			SocketPath: d.Profile.DeviceAgent,
			Registry:   d.Registry,
		}
	}
	return gcircle.StaticDevice{Info: d.Info, Signer: d.DeviceSigner}
}

func (d *device) Codec() gcircle.Codec {
	return gcircle.Codec{Peers: gpeer.Codec{Registry: d.Registry}}
}

// openKeeper opens the profile's database and returns a keeper for the profile's circle.
// The caller must call the returned close function.
func (d *device) openKeeper(ctx context.Context, log *slog.Logger) (*gckeeper.Keeper, func() error, error) {
	s, err := gcsqlite.NewOnDiskCircleStore(ctx, log.With("sys", "store"), d.Profile.Database)
	if err != nil {
		return nil, nil, err
	}

	k, err := gckeeper.New(ctx, log.With("sys", "keeper"), gckeeper.Config{
		Store:   s,
		Codec:   d.Codec(),
		Name:    d.Profile.Circle,
		UserKey: d.UserSigner.PubKey(),
		Device:  d.Device(),
	})
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	return k, s.Close, nil
}

// setup loads the logger and device for a subcommand,
// and opens its keeper.
func setup(cmd *cobra.Command) (*slog.Logger, *device, *gckeeper.Keeper, func() error, error) {
	log, err := newLogger(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	d, err := loadDevice(cmd.Context(), cmd.Flag("profile").Value.String())
	if err != nil {
		return nil, nil, nil, nil, err
	}

	k, closeFn, err := d.openKeeper(cmd.Context(), log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return log, d, k, closeFn, nil
}
