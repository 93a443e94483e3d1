package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/tourdesk/internal/domain"
)

// ErrUnknownEventType is returned for events the notifier has no route for.
var ErrUnknownEventType = errors.New("unknown event type")

// defaultUserName fills {{userName}} when an event does not carry one.
const defaultUserName = "traveler"

// BulkSender sends one notification to many users.
type BulkSender interface {
	SendBulkNotification(ctx context.Context, opts BulkSendOptions) map[string][]string
}

type eventRoute struct {
	templateID string
	priority   domain.Priority
}

var eventRoutes = map[domain.EventType]eventRoute{
	domain.EventRegistrationApproved: {TemplateRegistrationApproved, domain.PriorityHigh},
	domain.EventRegistrationRejected: {TemplateRegistrationRejected, domain.PriorityHigh},
	domain.EventScheduleChanged:      {TemplateScheduleChange, domain.PriorityHigh},
	domain.EventActivityAdded:        {TemplateActivityAdded, domain.PriorityNormal},
	domain.EventActivityUpdated:      {TemplateActivityUpdated, domain.PriorityNormal},
	domain.EventActivityCancelled:    {TemplateActivityCancelled, domain.PriorityHigh},
	domain.EventTourCancelled:        {TemplateTourCancelled, domain.PriorityUrgent},
	domain.EventCapacityChanged:      {TemplateCapacityChange, domain.PriorityLow},
}

// Notifier turns tour domain events into bulk notifications.
type Notifier struct {
	sender BulkSender
}

// NewNotifier creates a new Notifier.
func NewNotifier(sender BulkSender) *Notifier {
	return &Notifier{sender: sender}
}

// OnEvent notifies the event's users with the template routed for its type.
// Per-user failures are reported as empty id lists, not as an error.
func (n *Notifier) OnEvent(ctx context.Context, event domain.Event) (map[string][]string, error) {
	route, ok := eventRoutes[event.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.Type)
	}

	if len(event.UserIDs) == 0 {
		slog.Debug("no recipients for event", "event_id", event.ID, "event_type", event.Type)
		return map[string][]string{}, nil
	}

	vars := copyMap(event.Data)
	if vars == nil {
		vars = make(map[string]any)
	}
	if _, ok := vars["userName"]; !ok {
		vars["userName"] = defaultUserName
	}

	results := n.sender.SendBulkNotification(ctx, BulkSendOptions{
		UserIDs:    event.UserIDs,
		TemplateID: route.templateID,
		Variables:  vars,
		Priority:   route.priority,
		Metadata: map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		},
	})

	queued := 0
	for _, ids := range results {
		if len(ids) > 0 {
			queued++
		}
	}

	slog.Info("event notifications queued",
		"event_id", event.ID,
		"event_type", event.Type,
		"template_id", route.templateID,
		"recipients", len(event.UserIDs),
		"queued", queued,
	)

	return results, nil
}

// SupportedEventType reports whether the notifier routes t.
func SupportedEventType(t domain.EventType) bool {
	_, ok := eventRoutes[t]
	return ok
}
