// Package gcstore defines persistence for trusted circles.
//
// Stores hold opaque circle encodings keyed by circle name,
// alongside the generation so that callers can reject stale writes
// without decoding.
package gcstore

import (
	"context"
	"fmt"

	"github.com/gordian-engine/trustcircle/gcircle"
)

// CircleStore persists the latest trusted encoding of each named circle.
type CircleStore interface {
	// SaveCircle stores data as the encoding of the named circle.
	// Saving a generation lower than the stored one
	// returns a [StaleGenerationError] and leaves the store unchanged.
	// Saving the same generation again replaces the data,
	// as applicant changes do not advance the generation.
	SaveCircle(ctx context.Context, name string, gen gcircle.Generation, data []byte) error

	// LoadCircle returns the stored generation and encoding of the named circle.
	// If nothing was saved under name, the error is a [NoCircleError].
	LoadCircle(ctx context.Context, name string) (gcircle.Generation, []byte, error)

	// CircleNames returns the name of every stored circle, in ascending order.
	CircleNames(ctx context.Context) ([]string, error)
}

// NoCircleError is returned by [CircleStore.LoadCircle]
// when no circle was stored under the requested name.
type NoCircleError struct {
	Name string
}

func (e NoCircleError) Error() string {
	return fmt.Sprintf("no circle stored with name %q", e.Name)
}

// StaleGenerationError is returned by [CircleStore.SaveCircle]
// when the stored circle is newer than the one being saved.
type StaleGenerationError struct {
	Name string

	Have, Want gcircle.Generation
}

func (e StaleGenerationError) Error() string {
	return fmt.Sprintf(
		"cannot save circle %q at generation %d: already have generation %d",
		e.Name, e.Want, e.Have,
	)
}
