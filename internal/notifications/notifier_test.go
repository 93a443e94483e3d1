package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
)

type mockBulkSender struct {
	calls []BulkSendOptions
}

func (s *mockBulkSender) SendBulkNotification(_ context.Context, opts BulkSendOptions) map[string][]string {
	s.calls = append(s.calls, opts)
	results := make(map[string][]string, len(opts.UserIDs))
	for _, id := range opts.UserIDs {
		results[id] = []string{"msg-" + id}
	}
	return results
}

func TestNotifier_OnEvent_Routes(t *testing.T) {
	tests := []struct {
		eventType        domain.EventType
		expectedTemplate string
		expectedPriority domain.Priority
	}{
		{domain.EventRegistrationApproved, TemplateRegistrationApproved, domain.PriorityHigh},
		{domain.EventRegistrationRejected, TemplateRegistrationRejected, domain.PriorityHigh},
		{domain.EventScheduleChanged, TemplateScheduleChange, domain.PriorityHigh},
		{domain.EventActivityAdded, TemplateActivityAdded, domain.PriorityNormal},
		{domain.EventActivityUpdated, TemplateActivityUpdated, domain.PriorityNormal},
		{domain.EventActivityCancelled, TemplateActivityCancelled, domain.PriorityHigh},
		{domain.EventTourCancelled, TemplateTourCancelled, domain.PriorityUrgent},
		{domain.EventCapacityChanged, TemplateCapacityChange, domain.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			sender := &mockBulkSender{}
			n := NewNotifier(sender)

			results, err := n.OnEvent(context.Background(), domain.Event{
				ID:      "evt-1",
				Type:    tt.eventType,
				UserIDs: []string{"u1", "u2"},
				Data:    map[string]any{"tourName": "Alpine Trek"},
			})
			require.NoError(t, err)
			assert.Len(t, results, 2)

			require.Len(t, sender.calls, 1)
			call := sender.calls[0]
			assert.Equal(t, tt.expectedTemplate, call.TemplateID)
			assert.Equal(t, tt.expectedPriority, call.Priority)
			assert.Equal(t, "Alpine Trek", call.Variables["tourName"])
			assert.Equal(t, "traveler", call.Variables["userName"])
			assert.Equal(t, "evt-1", call.Metadata["event_id"])
		})
	}
}

func TestNotifier_OnEvent_UnknownType(t *testing.T) {
	sender := &mockBulkSender{}
	n := NewNotifier(sender)

	_, err := n.OnEvent(context.Background(), domain.Event{Type: "tour.renamed", UserIDs: []string{"u1"}})
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Empty(t, sender.calls)
}

func TestNotifier_OnEvent_NoRecipients(t *testing.T) {
	sender := &mockBulkSender{}
	n := NewNotifier(sender)

	results, err := n.OnEvent(context.Background(), domain.Event{Type: domain.EventTourCancelled})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, sender.calls)
}

func TestNotifier_WithDispatcher(t *testing.T) {
	f := newDispatcherFixture(t, allProviders()...)
	n := NewNotifier(f.dispatcher)

	results, err := n.OnEvent(context.Background(), domain.Event{
		ID:      "evt-2",
		Type:    domain.EventTourCancelled,
		UserIDs: []string{"u1"},
		Data:    map[string]any{"userName": "Bob", "tourName": "Coastal Walk", "reason": "Storm warning"},
	})
	require.NoError(t, err)
	require.Len(t, results["u1"], 3)

	msg := f.waitStatus(t, results["u1"][0], domain.MessageStatusSent)
	assert.Equal(t, "Coastal Walk has been cancelled", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Bob")
}
