package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bissquit/tourdesk/internal/domain"
)

// Provider delivers rendered notifications over one channel.
type Provider interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, job Job, subject, body string) (domain.DeliveryResult, error)
}

// Registry maps channels to delivery providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.Channel]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Channel]Provider)}
	for _, p := range providers {
		r.RegisterProvider(p)
	}
	return r
}

// RegisterProvider sets the provider for p.Channel(), replacing any existing one.
func (r *Registry) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Channel()]; exists {
		slog.Info("replacing delivery provider", "channel", p.Channel())
	}
	r.providers[p.Channel()] = p
}

// Deliver hands the job to the provider registered for its channel.
// A missing provider yields an unsuccessful result and a non-retryable error.
func (r *Registry) Deliver(ctx context.Context, job Job, subject, body string) (domain.DeliveryResult, error) {
	r.mu.RLock()
	p, ok := r.providers[job.Channel]
	r.mu.RUnlock()

	if !ok {
		msg := fmt.Sprintf("No delivery provider configured for channel %s", job.Channel)
		return domain.DeliveryResult{
			Success:      false,
			MessageID:    job.MessageID,
			Channel:      job.Channel,
			ErrorMessage: msg,
		}, NewNonRetryableError(fmt.Errorf("%w: %s", ErrNoProvider, job.Channel))
	}

	return p.Deliver(ctx, job, subject, body)
}

// AvailableChannels returns the registered channels in sorted order.
func (r *Registry) AvailableChannels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]domain.Channel, 0, len(r.providers))
	for ch := range r.providers {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}
