package main

import (
	"fmt"
	"net"
	"os"

	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gordian-engine/trustcircle/gexternalsigner"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve the device key to other gcircle commands over a unix socket",
		Long: `Serve signing requests for the profile's device key until interrupted.

Set device_agent in the profile to the same socket path
so that other commands sign through the agent.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}

			p, err := LoadProfile(cmd.Flag("profile").Value.String())
			if err != nil {
				return err
			}
			s, err := ReadSeed(p.DeviceKey)
			if err != nil {
				return fmt.Errorf("device key: %w", err)
			}

			if socket == "" {
				socket = p.DeviceAgent
			}
			if socket == "" {
				return fmt.Errorf("no socket: set --socket or device_agent in the profile")
			}

			// A previous agent may have left its socket behind.
			if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale socket: %w", err)
			}

			ln, err := net.Listen("unix", socket)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			reg := new(gcrypto.Registry)
			gcrypto.RegisterEd25519(reg)

			log.Info("Signing agent listening", "socket", socket, "key_id", gcrypto.KeyID(s.PubKey()))
			h := gexternalsigner.NewHTTPServer(cmd.Context(), log, gexternalsigner.HTTPServerConfig{
				Listener: ln,
				Signer:   s,
				Registry: reg,
			})
			h.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "Socket path (default: device_agent from the profile)")

	return cmd
}
