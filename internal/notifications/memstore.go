package notifications

import (
	"context"
	"sort"
	"sync"

	"github.com/bissquit/tourdesk/internal/domain"
)

// MemoryMessageStore is an in-process MessageRepository.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*domain.NotificationMessage
}

// NewMemoryMessageStore creates an empty message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string]*domain.NotificationMessage)}
}

// GetMessage returns a copy of the stored message.
func (s *MemoryMessageStore) GetMessage(_ context.Context, id string) (*domain.NotificationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// PutMessage inserts or replaces a message.
func (s *MemoryMessageStore) PutMessage(_ context.Context, msg *domain.NotificationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// DeleteMessage removes a message. Deleting an unknown id returns ErrMessageNotFound.
func (s *MemoryMessageStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return ErrMessageNotFound
	}
	delete(s.messages, id)
	return nil
}

// ListMessages returns matching messages ordered by creation time.
func (s *MemoryMessageStore) ListMessages(_ context.Context, filter MessageFilter) ([]*domain.NotificationMessage, error) {
	s.mu.RLock()
	result := make([]*domain.NotificationMessage, 0)
	for _, msg := range s.messages {
		if filter.Matches(msg) {
			result = append(result, cloneMessage(msg))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneMessage(msg *domain.NotificationMessage) *domain.NotificationMessage {
	c := *msg
	if msg.Metadata != nil {
		c.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// MemoryPreferenceStore is an in-process PreferenceRepository.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]domain.Preference
}

// NewMemoryPreferenceStore creates an empty preference store.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]domain.Preference)}
}

// GetPreference returns a copy of the user's preference.
func (s *MemoryPreferenceStore) GetPreference(_ context.Context, userID string) (*domain.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[userID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return &pref, nil
}

// SavePreference inserts or replaces the user's preference.
func (s *MemoryPreferenceStore) SavePreference(_ context.Context, pref *domain.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[pref.UserID] = *pref
	return nil
}
