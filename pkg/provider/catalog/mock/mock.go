// Package mock provides a test double for the catalog.Source interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearse/pkg/provider/catalog"
)

// Source is a mock implementation of catalog.Source.
type Source struct {
	mu sync.Mutex

	// Models is returned by ListModels.
	Models []catalog.RawModel

	// Err, if non-nil, is returned by ListModels.
	Err error

	// Block, if non-nil, makes ListModels wait until it is closed (or ctx is
	// done) before returning. Used to hold a refresh in flight.
	Block chan struct{}

	calls int
}

// ListModels records the call and returns Models or Err.
func (s *Source) ListModels(ctx context.Context) ([]catalog.RawModel, error) {
	s.mu.Lock()
	s.calls++
	block := s.Block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]catalog.RawModel, len(s.Models))
	copy(out, s.Models)
	return out, nil
}

// SetModels replaces the listing. Thread-safe.
func (s *Source) SetModels(models []catalog.RawModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Models = models
}

// SetErr replaces the error. Thread-safe.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Calls returns the number of ListModels invocations. Thread-safe.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ catalog.Source = (*Source)(nil)
