package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/spf13/cobra"
)

func newTrustCmd() *cobra.Command {
	var exclude string

	cmd := &cobra.Command{
		Use:   "trust FILE",
		Short: "Replace the stored circle with a received one, if it is trusted",
		Long: `Decode the circle in FILE and check whether it may replace the stored circle.
A trusted circle is saved; otherwise the stored circle is left alone
and the command fails with the reason.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) (err error) {
			_, _, k, closeFn, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cErr := closeFn(); cErr != nil && err == nil {
					err = cErr
				}
			}()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read proposed circle: %w", err)
			}

			if err := k.HandleProposal(cmd.Context(), data, exclude); err != nil {
				var cerr *gcircle.ConcordanceError
				if errors.As(err, &cerr) {
					fmt.Fprintf(cmd.OutOrStdout(), "Not trusted: %s\n", cerr.Status)
				}
				return err
			}

			c := k.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Trusted circle %q at generation %s\n", c.Name(), formatGeneration(c.Generation()))
			return nil
		},
	}

	cmd.Flags().StringVar(&exclude, "exclude", "", "Peer ID whose missing signature is excused, such as a peer that removed itself")

	return cmd
}
