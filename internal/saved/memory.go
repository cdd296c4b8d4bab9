package saved

import (
	"context"
	"sync"

	"plateful/internal/recipe"
)

// InMemoryStore is a thread-safe store used when nothing else is configured.
// It keeps the encoded form so it behaves like the persistent backends.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

// Load returns the client's saved recipes.
func (s *InMemoryStore) Load(_ context.Context, clientID string) ([]recipe.Recipe, error) {
	s.mu.RLock()
	data := s.records[clientID]
	s.mu.RUnlock()
	return decode(data)
}

// Save replaces the client's saved recipes.
func (s *InMemoryStore) Save(_ context.Context, clientID string, recipes []recipe.Recipe) error {
	data, err := encode(recipes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[clientID] = data
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() {}
