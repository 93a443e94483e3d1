package domain

import "time"

// EventType identifies a tour domain event that triggers notifications.
type EventType string

// Event types published by the tour administration API.
const (
	EventRegistrationApproved EventType = "registration.approved"
	EventRegistrationRejected EventType = "registration.rejected"
	EventScheduleChanged      EventType = "tour.schedule_changed"
	EventActivityAdded        EventType = "tour.activity_added"
	EventActivityUpdated      EventType = "tour.activity_updated"
	EventActivityCancelled    EventType = "tour.activity_cancelled"
	EventTourCancelled        EventType = "tour.cancelled"
	EventCapacityChanged      EventType = "tour.capacity_changed"
)

// Event is a domain event addressed to one or more users.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserIDs    []string       `json:"user_ids"`
	Data       map[string]any `json:"data"`
}
