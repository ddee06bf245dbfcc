// Package gexternalsigner keeps a device key in a separate signing agent process,
// reached over HTTP on a unix domain socket.
//
// The agent side is [NewHTTPServer].
// Devices use [ExternalSigner] or [Device] to sign circles without holding the key.
package gexternalsigner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gordian-engine/trustcircle/gcrypto"
	"github.com/gorilla/mux"
)

// Circle hashes are 32 bytes; anything much larger is not a circle.
const maxSignInput = 4 * 1024

type pubKeyResponse struct {
	// Registry-marshaled public key.
	PubKey []byte
}

type signRequest struct {
	Input []byte
}

type signResponse struct {
	Signature []byte
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Signer gcrypto.Signer

	// Registry used to marshal the signer's public key.
	Registry *gcrypto.Registry
}

// NewHTTPServer serves signing requests on cfg.Listener
// until ctx is canceled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

// Wait blocks until the server has stopped.
func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("Signing agent shutting down")
		} else {
			log.Info("Signing agent shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/pubkey", handlePubKey(log, cfg)).Methods(http.MethodGet)
	r.HandleFunc("/v1/sign", handleSign(log, cfg)).Methods(http.MethodPost)

	return r
}

func handlePubKey(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	pubKey := cfg.Registry.Marshal(cfg.Signer.PubKey())
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(log, w, pubKeyResponse{PubKey: pubKey})
	}
}

func handleSign(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		var sr signRequest
		if err := json.NewDecoder(io.LimitReader(req.Body, 2*maxSignInput)).Decode(&sr); err != nil {
			http.Error(w, "malformed sign request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(sr.Input) == 0 || len(sr.Input) > maxSignInput {
			http.Error(w, "sign input must be between 1 and 4096 bytes", http.StatusBadRequest)
			return
		}

		sig, err := cfg.Signer.Sign(req.Context(), sr.Input)
		if err != nil {
			log.Warn("Failed to sign", "err", err)
			http.Error(w, "signing failed", http.StatusInternalServerError)
			return
		}

		log.Debug("Signed input", "key_id", gcrypto.KeyID(cfg.Signer.PubKey()))
		writeJSON(log, w, signResponse{Signature: sig})
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", "err", err)
	}
}
