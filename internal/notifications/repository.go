// Package notifications implements the notification dispatch engine:
// templates, preferences, the delivery registry, the priority retry queue
// and the dispatcher that ties them together.
package notifications

import (
	"context"
	"time"

	"github.com/bissquit/tourdesk/internal/domain"
)

// MessageRepository stores notification messages keyed by id.
type MessageRepository interface {
	GetMessage(ctx context.Context, id string) (*domain.NotificationMessage, error)
	PutMessage(ctx context.Context, msg *domain.NotificationMessage) error
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, filter MessageFilter) ([]*domain.NotificationMessage, error)
}

// MessageFilter narrows ListMessages. Zero fields match everything.
type MessageFilter struct {
	UserID     string
	Status     domain.MessageStatus
	SentBefore time.Time
}

// Matches reports whether msg satisfies the filter.
func (f MessageFilter) Matches(msg *domain.NotificationMessage) bool {
	if f.UserID != "" && msg.UserID != f.UserID {
		return false
	}
	if f.Status != "" && msg.Status != f.Status {
		return false
	}
	if !f.SentBefore.IsZero() && (msg.SentAt == nil || !msg.SentAt.Before(f.SentBefore)) {
		return false
	}
	return true
}

// PreferenceRepository stores one preference record per user.
type PreferenceRepository interface {
	GetPreference(ctx context.Context, userID string) (*domain.Preference, error)
	SavePreference(ctx context.Context, pref *domain.Preference) error
}

// Inbox reads and clears the in-app inbox of a user.
type Inbox interface {
	GetUserMessages(ctx context.Context, userID string) ([]domain.InboxEntry, error)
	ClearUserMessages(ctx context.Context, userID string) error
}
