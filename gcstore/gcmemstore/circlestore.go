// Package gcmemstore contains in-memory implementations of the gcstore interfaces.
package gcmemstore

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/gordian-engine/trustcircle/gcircle"
	"github.com/gordian-engine/trustcircle/gcstore"
)

type CircleStore struct {
	mu sync.RWMutex

	circles map[string]storedCircle
}

type storedCircle struct {
	gen  gcircle.Generation
	data []byte
}

var _ gcstore.CircleStore = (*CircleStore)(nil)

func NewCircleStore() *CircleStore {
	return &CircleStore{
		circles: make(map[string]storedCircle),
	}
}

func (s *CircleStore) SaveCircle(_ context.Context, name string, gen gcircle.Generation, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.circles[name]; ok && cur.gen > gen {
		return gcstore.StaleGenerationError{Name: name, Have: cur.gen, Want: gen}
	}

	s.circles[name] = storedCircle{
		gen:  gen,
		data: bytes.Clone(data),
	}
	return nil
}

func (s *CircleStore) LoadCircle(_ context.Context, name string) (gcircle.Generation, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.circles[name]
	if !ok {
		return 0, nil, gcstore.NoCircleError{Name: name}
	}

	return c.gen, bytes.Clone(c.data), nil
}

func (s *CircleStore) CircleNames(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.circles))
	for name := range s.circles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
