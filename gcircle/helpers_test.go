package gcircle_test

import (
	"context"
	"iter"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcrypto"
)

func peerIDs(seq iter.Seq[gcircle.Peer]) []string {
	var out []string
	for p := range seq {
		out = append(out, p.ID())
	}
	return out
}

// wrongMessageSigner signs something other than its input,
// producing a signature that is present but invalid.
type wrongMessageSigner struct {
	gcrypto.Signer
}

func (s wrongMessageSigner) Sign(ctx context.Context, _ []byte) ([]byte, error) {
	return s.Signer.Sign(ctx, []byte("not the circle hash"))
}
