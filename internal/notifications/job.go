package notifications

import (
	"time"

	"github.com/bissquit/tourdesk/internal/domain"
)

// Job is one channel-specific unit of dispatch work handled by the Queue.
type Job struct {
	MessageID   string
	UserID      string
	TemplateID  string
	Variables   map[string]any
	Channel     domain.Channel
	Priority    domain.Priority
	ScheduledAt *time.Time
	Metadata    map[string]any
	RetryCount  int
}

// SendOptions describes a request to notify one user.
type SendOptions struct {
	UserID      string
	TemplateID  string
	Variables   map[string]any
	Channels    []domain.Channel
	Priority    domain.Priority
	ScheduledAt *time.Time
	Metadata    map[string]any
}

// BulkSendOptions describes a request to notify many users with one template.
type BulkSendOptions struct {
	UserIDs    []string
	TemplateID string
	Variables  map[string]any
	Channels   []domain.Channel
	Priority   domain.Priority
	Metadata   map[string]any
}

// QueueStats contains job counts by bucket.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
