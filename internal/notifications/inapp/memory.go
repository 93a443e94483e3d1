package inapp

import (
	"context"
	"sync"

	"github.com/bissquit/tourdesk/internal/domain"
)

// MemoryStore is an in-process inbox store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.InboxEntry
}

// NewMemoryStore creates an empty inbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]domain.InboxEntry)}
}

// Append adds an entry to the end of the user's inbox.
func (s *MemoryStore) Append(_ context.Context, userID string, entry domain.InboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = append(s.entries[userID], entry)
	return nil
}

// List returns a copy of the user's inbox.
func (s *MemoryStore) List(_ context.Context, userID string) ([]domain.InboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InboxEntry, len(s.entries[userID]))
	copy(result, s.entries[userID])
	return result, nil
}

// Clear removes all entries of the user.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, userID)
	return nil
}
