package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var (
		dir, peerID, name, circle, userKey string

		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate device keys and write a new device profile",
		Long: `Generate a device key, and a user key unless --user-key names an existing one,
then write profile.toml referencing them.

Devices in the same account must share the user key.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create profile directory: %w", err)
			}

			p := DefaultProfile()
			p.Circle = circle

			p.PeerID = peerID
			if p.PeerID == "" {
				p.PeerID = petname.Generate(3, "-")
			}
			p.Name = name
			if p.Name == "" {
				p.Name = petname.Generate(2, " ")
			}

			if userKey == "" {
				s, err := generateSigner()
				if err != nil {
					return err
				}
				if err := WriteSeed(filepath.Join(dir, defaultUserKey), s, force); err != nil {
					return fmt.Errorf("write user key: %w", err)
				}
			} else {
				abs, err := filepath.Abs(userKey)
				if err != nil {
					return err
				}
				if _, err := ReadSeed(abs); err != nil {
					return err
				}
				p.UserKey = abs
			}

			s, err := generateSigner()
			if err != nil {
				return err
			}
			if err := WriteSeed(filepath.Join(dir, defaultDeviceKey), s, force); err != nil {
				return fmt.Errorf("write device key: %w", err)
			}

			profilePath := filepath.Join(dir, "profile.toml")
			if err := WriteProfile(profilePath, p, force); err != nil {
				return fmt.Errorf("write profile: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s for peer %q (device key %s)\n",
				profilePath, p.PeerID, gcrypto.KeyID(s.PubKey()))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&dir, "dir", "d", ".", "Directory for the generated profile and keys")
	f.StringVar(&peerID, "peer-id", "", "Peer ID of this device (default: random pet name)")
	f.StringVar(&name, "name", "", "Human-readable device name (default: random pet name)")
	f.StringVar(&circle, "circle", defaultCircle, "Name of the circle this device keeps")
	f.StringVar(&userKey, "user-key", "", "Existing user key to reuse instead of generating one")
	f.BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func generateSigner() (gcrypto.Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return gcrypto.Ed25519Signer{}, fmt.Errorf("generate key: %w", err)
	}
	return gcrypto.NewEd25519Signer(priv), nil
}
