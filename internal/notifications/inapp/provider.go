// Package inapp provides the in-app delivery provider and user inboxes.
package inapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

// Store keeps per-user inbox entries in delivery order.
type Store interface {
	Append(ctx context.Context, userID string, entry domain.InboxEntry) error
	List(ctx context.Context, userID string) ([]domain.InboxEntry, error)
	Clear(ctx context.Context, userID string) error
}

// Provider delivers notifications into user inboxes.
type Provider struct {
	store Store
}

// NewProvider creates an in-app provider backed by store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// Channel returns the channel this provider delivers on.
func (p *Provider) Channel() domain.Channel {
	return domain.ChannelInApp
}

// Deliver appends the rendered notification to the user's inbox.
func (p *Provider) Deliver(ctx context.Context, job notifications.Job, subject, body string) (domain.DeliveryResult, error) {
	result := domain.DeliveryResult{MessageID: job.MessageID, Channel: domain.ChannelInApp}

	now := time.Now()
	entry := domain.InboxEntry{Subject: subject, Body: body, Timestamp: now}
	if err := p.store.Append(ctx, job.UserID, entry); err != nil {
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("append inbox entry: %w", err)
	}

	slog.Debug("in-app notification stored", "message_id", job.MessageID, "user_id", job.UserID)

	result.Success = true
	result.SentAt = &now
	return result, nil
}

// GetUserMessages returns the user's inbox, oldest first.
func (p *Provider) GetUserMessages(ctx context.Context, userID string) ([]domain.InboxEntry, error) {
	return p.store.List(ctx, userID)
}

// ClearUserMessages empties the user's inbox.
func (p *Provider) ClearUserMessages(ctx context.Context, userID string) error {
	return p.store.Clear(ctx, userID)
}
