package selection

import (
	"context"
	"sync"
)

// MemoryStore keeps selections in process memory, keyed by user.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Load returns the selection saved for userID.
func (s *MemoryStore) Load(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[userID], nil
}

// Save stores orgID for userID.
func (s *MemoryStore) Save(_ context.Context, userID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[userID] = orgID
	return nil
}
