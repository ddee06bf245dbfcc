package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Request admission of this device into the stored circle",
		Long: `Add this device as an applicant of the stored circle,
replacing any retirement ticket it left behind.
Share the result with a peer, who trusts it and then accepts the request.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return modifyCircle(cmd, out, "Applied to", func(_ *slog.Logger, d *device, c *gcircle.Circle) error {
				if c.IsEmpty() {
					return fmt.Errorf("circle %q has no peers; trust an existing circle first", c.Name())
				}
				return c.RequestReadmission(d.UserSigner.PubKey(), d.Info)
			})
		},
	}

	addOutFlag(cmd, &out)

	return cmd
}

func newAcceptCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "accept [PEER_ID...]",
		Short: "Admit applicants into the stored circle",
		Long: `Move the named applicants into the peer set and re-sign the circle.
With no arguments, every applicant whose request verifies is accepted.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return modifyCircle(cmd, out, "Accepted into", func(log *slog.Logger, d *device, c *gcircle.Circle) error {
				ctx := cmd.Context()

				if len(args) == 0 {
					n, err := c.AcceptRequests(ctx, log, d.UserSigner, d.Device())
					if err != nil {
						return err
					}
					if n == 0 {
						return fmt.Errorf("circle %q has no acceptable applicants", c.Name())
					}
					return nil
				}

				for _, id := range args {
					p, err := findApplicant(c, id)
					if err != nil {
						return err
					}
					if err := c.AcceptRequest(ctx, log, d.UserSigner, d.Device(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	addOutFlag(cmd, &out)

	return cmd
}

func newRejectCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "reject PEER_ID",
		Short: "Reject an applicant of the stored circle",
		Long: `Move the applicant into the rejected applicants.
Rejecting this device's own request withdraws it.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return modifyCircle(cmd, out, "Rejected from", func(_ *slog.Logger, d *device, c *gcircle.Circle) error {
				p, err := findApplicant(c, args[0])
				if err != nil {
					return err
				}
				return c.RejectRequest(d.Info, p)
			})
		},
	}

	addOutFlag(cmd, &out)

	return cmd
}

func newRemoveCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "remove PEER_ID...",
		Short: "Remove peers from the stored circle",
		Long: `Remove the named peers and re-sign the circle.
Named applicants are rejected instead.`,
		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return modifyCircle(cmd, out, "Removed from", func(log *slog.Logger, d *device, c *gcircle.Circle) error {
				return c.RemovePeers(cmd.Context(), log, d.UserSigner, d.Device(), d.Info, args)
			})
		},
	}

	addOutFlag(cmd, &out)

	return cmd
}

func addOutFlag(cmd *cobra.Command, out *string) {
	cmd.Flags().StringVarP(out, "out", "o", "", "Also write the encoded circle to this file")
}

// modifyCircle applies fn to the stored circle through the keeper,
// optionally exports the result to out, and reports the new generation.
func modifyCircle(
	cmd *cobra.Command,
	out, verb string,
	fn func(*slog.Logger, *device, *gcircle.Circle) error,
) (err error) {
	log, d, k, closeFn, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := closeFn(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	data, err := k.Modify(cmd.Context(), func(c *gcircle.Circle) error {
		return fn(log, d, c)
	})
	if err != nil {
		return err
	}

	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write circle: %w", err)
		}
	}

	c := k.Current()
	fmt.Fprintf(cmd.OutOrStdout(), "%s circle %q at generation %s\n", verb, c.Name(), formatGeneration(c.Generation()))
	return nil
}

func findApplicant(c *gcircle.Circle, id string) (gcircle.Peer, error) {
	for p := range c.Applicants() {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", id, gcircle.ErrNotApplicant)
}
