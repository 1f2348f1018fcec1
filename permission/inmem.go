package permission

import (
	"context"
	"sync"

	"github.com/agentforge/core/tools"
)

// InmemStore is an in-memory Store, safe for concurrent use. It follows the
// teacher's clone-on-read in-memory session store idiom generalized from
// session/run metadata to a flat tool-name-to-decision map.
type InmemStore struct {
	mu        sync.RWMutex
	decisions map[tools.Name]Decision
}

// NewInmemStore returns an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{decisions: make(map[tools.Name]Decision)}
}

// Get implements Store.
func (s *InmemStore) Get(_ context.Context, name tools.Name) (Decision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[name]
	return d, ok, nil
}

// Set implements Store.
func (s *InmemStore) Set(_ context.Context, name tools.Name, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[name] = d
	return nil
}
