package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel is a delivery medium for a notification.
type Channel string

// Channels.
const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// IsValid reports whether c is a known channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp:
		return true
	default:
		return false
	}
}

// Priority orders queued jobs. Higher values are dispatched first.
// The zero value is PriorityNormal.
type Priority int

// Priorities.
const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses the text form of a priority. Empty input yields normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MessageStatus is the lifecycle status of a notification message.
type MessageStatus string

// Message statuses.
const (
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusFailed     MessageStatus = "failed"
	MessageStatusRetrying   MessageStatus = "retrying"
)

// IsTerminal reports whether no further automatic transition happens.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed
}

// TemplateCategory is the notification type a template belongs to.
type TemplateCategory string

// Template categories.
const (
	CategoryTourUpdate           TemplateCategory = "tour_update"
	CategoryTourCancelled        TemplateCategory = "tour_cancelled"
	CategoryScheduleChange       TemplateCategory = "schedule_change"
	CategoryActivityUpdate       TemplateCategory = "activity_update"
	CategoryCapacityChange       TemplateCategory = "capacity_change"
	CategoryRegistrationUpdate   TemplateCategory = "registration_update"
	CategoryRegistrationApproved TemplateCategory = "registration_approved"
	CategoryRegistrationRejected TemplateCategory = "registration_rejected"
	CategorySystem               TemplateCategory = "system"
)

// NotificationMessage tracks one (user, channel) delivery.
type NotificationMessage struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	TemplateID  string           `json:"template_id"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Type        TemplateCategory `json:"type"`
	Channel     Channel          `json:"channel"`
	Status      MessageStatus    `json:"status"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	SentAt      *time.Time       `json:"sent_at,omitempty"`
	FailedAt    *time.Time       `json:"failed_at,omitempty"`
	RetryCount  int              `json:"retry_count"`
	MaxRetries  int              `json:"max_retries"`
	Error       string           `json:"error,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Template is a named subject/body skeleton with declared variables.
type Template struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	Category  TemplateCategory `json:"category"`
	Variables []string         `json:"variables"`
}

// Preference holds a user's channel and category opt-ins.
// In-app delivery is always enabled and therefore not represented.
type Preference struct {
	UserID                     string    `json:"user_id"`
	EmailEnabled               bool      `json:"email_enabled"`
	PushEnabled                bool      `json:"push_enabled"`
	SMSEnabled                 bool      `json:"sms_enabled"`
	TourUpdatesEnabled         bool      `json:"tour_updates_enabled"`
	RegistrationUpdatesEnabled bool      `json:"registration_updates_enabled"`
	SystemUpdatesEnabled       bool      `json:"system_updates_enabled"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// DefaultPreference returns the record a user gets on first access.
func DefaultPreference(userID string) *Preference {
	return &Preference{
		UserID:                     userID,
		EmailEnabled:               true,
		PushEnabled:                true,
		SMSEnabled:                 false,
		TourUpdatesEnabled:         true,
		RegistrationUpdatesEnabled: true,
		SystemUpdatesEnabled:       true,
		UpdatedAt:                  time.Now(),
	}
}

// ChannelEnabled reports whether the user accepts deliveries on ch.
func (p *Preference) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelInApp:
		return true
	default:
		return false
	}
}

// PreferenceUpdate is a partial preference change. Nil fields are left as is.
type PreferenceUpdate struct {
	EmailEnabled               *bool `json:"email_enabled,omitempty"`
	PushEnabled                *bool `json:"push_enabled,omitempty"`
	SMSEnabled                 *bool `json:"sms_enabled,omitempty"`
	TourUpdatesEnabled         *bool `json:"tour_updates_enabled,omitempty"`
	RegistrationUpdatesEnabled *bool `json:"registration_updates_enabled,omitempty"`
	SystemUpdatesEnabled       *bool `json:"system_updates_enabled,omitempty"`
}

// Apply merges u into p.
func (u PreferenceUpdate) Apply(p *Preference) {
	if u.EmailEnabled != nil {
		p.EmailEnabled = *u.EmailEnabled
	}
	if u.PushEnabled != nil {
		p.PushEnabled = *u.PushEnabled
	}
	if u.SMSEnabled != nil {
		p.SMSEnabled = *u.SMSEnabled
	}
	if u.TourUpdatesEnabled != nil {
		p.TourUpdatesEnabled = *u.TourUpdatesEnabled
	}
	if u.RegistrationUpdatesEnabled != nil {
		p.RegistrationUpdatesEnabled = *u.RegistrationUpdatesEnabled
	}
	if u.SystemUpdatesEnabled != nil {
		p.SystemUpdatesEnabled = *u.SystemUpdatesEnabled
	}
}

// DeliveryResult is what a provider reports for one send.
type DeliveryResult struct {
	Success      bool       `json:"success"`
	MessageID    string     `json:"message_id"`
	Channel      Channel    `json:"channel"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// InboxEntry is one in-app notification shown in a user's inbox.
type InboxEntry struct {
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}
