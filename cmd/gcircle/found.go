package main

import (
	"fmt"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/spf13/cobra"
)

func newFoundCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "found",
		Short: "Found a new circle with this device as its only peer",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			log, d, k, closeFn, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cErr := closeFn(); cErr != nil && err == nil {
					err = cErr
				}
			}()

			if cur := k.Current(); !cur.IsEmpty() && !force {
				return fmt.Errorf(
					"circle %q already has %d active peers; use --force to found it again",
					cur.Name(), cur.CountActivePeers(),
				)
			}

			ctx := cmd.Context()
			if _, err := k.Modify(ctx, func(c *gcircle.Circle) error {
				return c.ResetToOffering(ctx, log, d.UserSigner, d.Device())
			}); err != nil {
				return fmt.Errorf("found circle: %w", err)
			}

			c := k.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Founded circle %q at generation %s\n", c.Name(), formatGeneration(c.Generation()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing circle")

	return cmd
}
