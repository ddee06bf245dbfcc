package main

import (
	"fmt"
	"io"
	"iter"
	"os"
	"text/tabwriter"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored circle",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			_, d, k, closeFn, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cErr := closeFn(); cErr != nil && err == nil {
					err = cErr
				}
			}()

			if out != "" {
				b, err := k.Encoded()
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0o644); err != nil {
					return fmt.Errorf("write circle: %w", err)
				}
			}

			return printCircle(cmd.OutOrStdout(), k.Current(), d)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Also write the encoded circle to this file")

	return cmd
}

func formatGeneration(g gcircle.Generation) string {
	return fmt.Sprintf("%d.%d", g.Epoch(), g.Sequence())
}

func printCircle(w io.Writer, c *gcircle.Circle, d *device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	userSig := "missing"
	switch {
	case c.Verify(d.UserSigner.PubKey()):
		userSig = "valid"
	case c.HasSignature(d.UserSigner.PubKey()):
		userSig = "INVALID"
	}

	fmt.Fprintf(tw, "circle:\t%s\n", c.Name())
	fmt.Fprintf(tw, "generation:\t%s\n", formatGeneration(c.Generation()))
	fmt.Fprintf(tw, "user signature:\t%s\n", userSig)

	printSet(tw, "peers", c.ActivePeers(), func(p gcircle.Peer) string {
		var flags string
		if p.IsRetired() {
			flags += " retired"
		}
		if p.IsCloudIdentity() {
			flags += " cloud"
		}
		if c.VerifyPeerSigned(p) {
			flags += " signed"
		}
		if !p.VerifyApplication(d.UserSigner.PubKey()) {
			flags += " unverified"
		}
		return flags
	})
	printSet(tw, "applicants", c.Applicants(), nil)
	printSet(tw, "rejected", c.RejectedApplicants(), nil)

	return tw.Flush()
}

func printSet(w io.Writer, title string, seq iter.Seq[gcircle.Peer], flags func(gcircle.Peer) string) {
	fmt.Fprintf(w, "%s:\n", title)
	for p := range seq {
		var f string
		if flags != nil {
			f = flags(p)
		}
		fmt.Fprintf(w, "  %v\t%s\n", p, f)
	}
}
