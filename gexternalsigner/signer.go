package gexternalsigner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/tv42/httpunix"
)

const agentLocation = "agent"

var _ gcrypto.Signer = ExternalSigner{}

// ExternalSigner is a [gcrypto.Signer] that generates signatures
// by connecting to a signing agent.
type ExternalSigner struct {
	client *http.Client
	key    gcrypto.PubKey
}

// NewExternalSigner connects to the agent listening on socketPath
// and fetches its public key.
func NewExternalSigner(ctx context.Context, socketPath string, reg *gcrypto.Registry) (ExternalSigner, error) {
	t := &httpunix.Transport{
		DialTimeout:           time.Second,
		RequestTimeout:        5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	t.RegisterLocation(agentLocation, socketPath)

	s := ExternalSigner{
		client: &http.Client{Transport: t},
	}

	var res pubKeyResponse
	if err := s.do(ctx, http.MethodGet, "/v1/pubkey", nil, &res); err != nil {
		return ExternalSigner{}, fmt.Errorf("failed to fetch public key from %s: %w", socketPath, err)
	}

	key, err := reg.Unmarshal(res.PubKey)
	if err != nil {
		return ExternalSigner{}, fmt.Errorf("failed to decode agent public key: %w", err)
	}
	s.key = key

	return s, nil
}

func (s ExternalSigner) PubKey() gcrypto.PubKey {
	return s.key
}

// Sign asks the agent to sign input.
// A signature that does not verify against the agent's key is an error.
func (s ExternalSigner) Sign(ctx context.Context, input []byte) ([]byte, error) {
	var res signResponse
	if err := s.do(ctx, http.MethodPost, "/v1/sign", signRequest{Input: input}, &res); err != nil {
		return nil, fmt.Errorf("ExternalSigner.Sign failed: %w", err)
	}

	if !s.key.Verify(input, res.Signature) {
		return nil, errors.New("agent returned a signature that does not verify")
	}
	return res.Signature, nil
}

func (s ExternalSigner) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, httpunix.Scheme+"://"+agentLocation+path, r)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var _ gcircle.Device = Device{}

// Device is a [gcircle.Device] whose key is held by a signing agent.
// The agent is contacted each time the device key is needed,
// so an agent that is not running surfaces as a [gcircle.Device.DeviceSigner] error.
type Device struct {
	Info gcircle.Peer

	SocketPath string

	Registry *gcrypto.Registry
}

func (d Device) PeerInfo() gcircle.Peer {
	return d.Info
}

func (d Device) DeviceSigner(ctx context.Context) (gcrypto.Signer, error) {
	s, err := NewExternalSigner(ctx, d.SocketPath, d.Registry)
	if err != nil {
		return nil, err
	}

	if !s.PubKey().Equal(d.Info.PubKey()) {
		return nil, fmt.Errorf(
			"agent key %s does not match key of peer %q",
			gcrypto.KeyID(s.PubKey()), d.Info.ID(),
		)
	}
	return s, nil
}
