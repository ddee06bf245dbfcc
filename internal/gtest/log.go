// Package gtest contains helpers shared across tests.
package gtest

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so output is only shown for failing or verbose tests.
//
// The level defaults to debug and may be raised
// with the TRUSTCIRCLE_TEST_LOG_LEVEL environment variable.
func NewLogger(t testing.TB) *slog.Logger {
	level := slog.LevelDebug
	if v := os.Getenv("TRUSTCIRCLE_TEST_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			t.Fatalf("invalid TRUSTCIRCLE_TEST_LOG_LEVEL %q: %v", v, err)
		}
	}

	return slogt.New(t, slogt.Factory(func(w io.Writer) slog.Handler {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}))
}
