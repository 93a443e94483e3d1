package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/pkg/ctxlog"
)

// DefaultRetention is how long sent messages are kept before Cleanup purges them.
const DefaultRetention = 7 * 24 * time.Hour

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	Queue     QueueConfig
	Retention time.Duration
}

// Dispatcher turns send requests into queued per-channel jobs and tracks
// their messages through the queue lifecycle.
type Dispatcher struct {
	templates   *TemplateRegistry
	preferences *PreferenceResolver
	registry    *Registry
	messages    MessageRepository
	queue       *Queue
	retention   time.Duration

	// msgMu serializes read-modify-write of stored messages.
	msgMu      sync.Mutex
	eventsDone chan struct{}
}

// NewDispatcher creates a dispatcher and subscribes it to its queue's events.
func NewDispatcher(
	config DispatcherConfig,
	templates *TemplateRegistry,
	preferences *PreferenceResolver,
	registry *Registry,
	messages MessageRepository,
) *Dispatcher {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}

	d := &Dispatcher{
		templates:   templates,
		preferences: preferences,
		registry:    registry,
		messages:    messages,
		retention:   config.Retention,
		eventsDone:  make(chan struct{}),
	}
	d.queue = NewQueue(config.Queue, d)

	go d.consumeEvents()

	return d
}

// Start begins processing queued jobs.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop stops the queue, waits for in-flight jobs and applies their final events.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
	<-d.eventsDone
}

// SendNotification validates the request, resolves channels from the user's
// preferences and enqueues one job per channel. It returns the created
// message ids in channel resolution order without waiting for delivery.
func (d *Dispatcher) SendNotification(ctx context.Context, opts SendOptions) ([]string, error) {
	tmpl, ok := d.templates.GetTemplate(opts.TemplateID)
	if !ok {
		recordSendRequest("unknown", "template_not_found")
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, opts.TemplateID)
	}

	validation, err := d.templates.ValidateTemplateVariables(tmpl.ID, opts.Variables)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		recordSendRequest(tmpl.ID, "missing_variables")
		return nil, &MissingVariablesError{TemplateID: tmpl.ID, Names: validation.MissingVariables}
	}

	pref, err := d.preferences.GetUserPreferences(ctx, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user preferences: %w", err)
	}

	channels := resolveChannels(tmpl, pref, opts.Channels)
	if len(channels) == 0 {
		recordSendRequest(tmpl.ID, "no_channels")
		return nil, fmt.Errorf("%w: %s", ErrNoEnabledChannels, opts.UserID)
	}

	maxRetries := d.queue.Config().MaxRetries
	ids := make([]string, 0, len(channels))

	for _, ch := range channels {
		now := time.Now()
		msg := &domain.NotificationMessage{
			ID:          uuid.NewString(),
			UserID:      opts.UserID,
			TemplateID:  tmpl.ID,
			Type:        tmpl.Category,
			Channel:     ch,
			Status:      domain.MessageStatusQueued,
			ScheduledAt: opts.ScheduledAt,
			MaxRetries:  maxRetries,
			Metadata:    copyMap(opts.Metadata),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := d.messages.PutMessage(ctx, msg); err != nil {
			return ids, fmt.Errorf("store message: %w", err)
		}

		job := Job{
			MessageID:   msg.ID,
			UserID:      opts.UserID,
			TemplateID:  tmpl.ID,
			Variables:   copyMap(opts.Variables),
			Channel:     ch,
			Priority:    opts.Priority,
			ScheduledAt: opts.ScheduledAt,
			Metadata:    copyMap(opts.Metadata),
		}

		if err := d.queue.Enqueue(job); err != nil {
			d.markFailed(ctx, msg.ID, 0, err)
			return ids, fmt.Errorf("enqueue job: %w", err)
		}

		ids = append(ids, msg.ID)
	}

	recordSendRequest(tmpl.ID, "queued")
	ctxlog.FromContext(ctx).Debug("notification queued",
		"user_id", opts.UserID,
		"template_id", tmpl.ID,
		"channels", channels,
		"priority", opts.Priority,
	)

	return ids, nil
}

// SendBulkNotification sends the same notification to every user. A failure
// for one user is logged and recorded as an empty id list for that user.
func (d *Dispatcher) SendBulkNotification(ctx context.Context, opts BulkSendOptions) map[string][]string {
	results := make(map[string][]string, len(opts.UserIDs))

	for _, userID := range opts.UserIDs {
		ids, err := d.SendNotification(ctx, SendOptions{
			UserID:     userID,
			TemplateID: opts.TemplateID,
			Variables:  opts.Variables,
			Channels:   opts.Channels,
			Priority:   opts.Priority,
			Metadata:   opts.Metadata,
		})
		if err != nil {
			ctxlog.FromContext(ctx).Error("bulk notification failed for user",
				"user_id", userID,
				"template_id", opts.TemplateID,
				"error", err,
			)
			results[userID] = []string{}
			continue
		}
		results[userID] = ids
	}

	return results
}

// GetNotificationMessage returns the message with the given id.
func (d *Dispatcher) GetNotificationMessage(ctx context.Context, id string) (*domain.NotificationMessage, error) {
	return d.messages.GetMessage(ctx, id)
}

// GetUserNotifications returns the user's messages, oldest first.
func (d *Dispatcher) GetUserNotifications(ctx context.Context, userID string) ([]*domain.NotificationMessage, error) {
	return d.messages.ListMessages(ctx, MessageFilter{UserID: userID})
}

// GetQueueStats returns queue job counts.
func (d *Dispatcher) GetQueueStats() QueueStats {
	return d.queue.Stats()
}

// GetFailedNotifications returns jobs that exhausted their retries.
func (d *Dispatcher) GetFailedNotifications() []Job {
	return d.queue.FailedJobs()
}

// Cleanup clears queue history and purges sent messages older than the
// retention period. It returns the number of purged messages.
func (d *Dispatcher) Cleanup(ctx context.Context) (int, error) {
	d.queue.Cleanup()

	cutoff := time.Now().Add(-d.retention)
	old, err := d.messages.ListMessages(ctx, MessageFilter{
		Status:     domain.MessageStatusSent,
		SentBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list sent messages: %w", err)
	}

	purged := 0
	for _, msg := range old {
		if err := d.messages.DeleteMessage(ctx, msg.ID); err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				continue
			}
			return purged, fmt.Errorf("delete message %s: %w", msg.ID, err)
		}
		purged++
	}

	ctxlog.FromContext(ctx).Info("notification cleanup finished", "purged_messages", purged, "cutoff", cutoff)
	return purged, nil
}

// Process renders and delivers one job. It is called by the queue.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	ctx = ctxlog.With(ctx, "message_id", job.MessageID, "channel", job.Channel, "attempt", job.RetryCount+1)

	rendered, ok := d.templates.RenderTemplate(job.TemplateID, job.Variables)
	if !ok {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrTemplateNotFound, job.TemplateID))
	}

	if err := d.updateMessage(ctx, job.MessageID, func(msg *domain.NotificationMessage) {
		msg.Subject = rendered.Subject
		msg.Body = rendered.Body
	}); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to store rendered message", "error", err)
	}

	result, err := d.registry.Deliver(ctx, job, rendered.Subject, rendered.Body)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("delivery via %s failed: %s", job.Channel, result.ErrorMessage)
	}
	return nil
}

func (d *Dispatcher) consumeEvents() {
	defer close(d.eventsDone)

	for ev := range d.queue.Events() {
		d.handleQueueEvent(context.Background(), ev)
	}
}

func (d *Dispatcher) handleQueueEvent(ctx context.Context, ev QueueEvent) {
	var err error

	switch ev.Type {
	case QueueEventProcessing:
		err = d.updateMessage(ctx, ev.Job.MessageID, func(msg *domain.NotificationMessage) {
			msg.Status = domain.MessageStatusProcessing
		})
	case QueueEventCompleted:
		err = d.updateMessage(ctx, ev.Job.MessageID, func(msg *domain.NotificationMessage) {
			sentAt := ev.At
			msg.Status = domain.MessageStatusSent
			msg.SentAt = &sentAt
			msg.Error = ""
		})
	case QueueEventRetrying:
		err = d.updateMessage(ctx, ev.Job.MessageID, func(msg *domain.NotificationMessage) {
			msg.Status = domain.MessageStatusRetrying
			msg.RetryCount = ev.Job.RetryCount
			msg.Error = errorText(ev.Err)
		})
	case QueueEventFailed:
		d.markFailed(ctx, ev.Job.MessageID, ev.Job.RetryCount, ev.Err)
	}

	if err != nil {
		slog.Error("failed to apply queue event",
			"event", ev.Type,
			"message_id", ev.Job.MessageID,
			"error", err,
		)
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, messageID string, retryCount int, cause error) {
	err := d.updateMessage(ctx, messageID, func(msg *domain.NotificationMessage) {
		failedAt := time.Now()
		msg.Status = domain.MessageStatusFailed
		msg.FailedAt = &failedAt
		msg.RetryCount = retryCount
		msg.Error = errorText(cause)
	})
	if err != nil {
		slog.Error("failed to mark message as failed", "message_id", messageID, "error", err)
	}
}

func (d *Dispatcher) updateMessage(ctx context.Context, id string, mutate func(*domain.NotificationMessage)) error {
	d.msgMu.Lock()
	defer d.msgMu.Unlock()

	msg, err := d.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	mutate(msg)
	msg.UpdatedAt = time.Now()
	return d.messages.PutMessage(ctx, msg)
}

// resolveChannels picks the channels a job is created for. Explicit channels
// are filtered by the user's channel toggles. Otherwise the template category
// gates email/push/sms and in-app is always appended.
func resolveChannels(tmpl *domain.Template, pref *domain.Preference, requested []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]bool)
	result := make([]domain.Channel, 0, 4)

	add := func(ch domain.Channel) {
		if seen[ch] {
			return
		}
		seen[ch] = true
		result = append(result, ch)
	}

	if len(requested) > 0 {
		for _, ch := range requested {
			if ch.IsValid() && pref.ChannelEnabled(ch) {
				add(ch)
			}
		}
		return result
	}

	if categoryEnabled(tmpl.Category, pref) {
		for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelPush, domain.ChannelSMS} {
			if pref.ChannelEnabled(ch) {
				add(ch)
			}
		}
	}
	add(domain.ChannelInApp)

	return result
}

func categoryEnabled(category domain.TemplateCategory, pref *domain.Preference) bool {
	switch category {
	case domain.CategoryTourUpdate,
		domain.CategoryTourCancelled,
		domain.CategoryScheduleChange,
		domain.CategoryActivityUpdate,
		domain.CategoryCapacityChange:
		return pref.TourUpdatesEnabled
	case domain.CategoryRegistrationUpdate,
		domain.CategoryRegistrationApproved,
		domain.CategoryRegistrationRejected:
		return pref.RegistrationUpdatesEnabled
	case domain.CategorySystem:
		return pref.SystemUpdatesEnabled
	default:
		return true
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
