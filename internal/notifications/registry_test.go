package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
)

// mockProvider records deliveries and fails when fail is set.
type mockProvider struct {
	channel domain.Channel
	fail    bool
	err     error

	mu         sync.Mutex
	deliveries []Job
	subjects   []string
}

func newMockProvider(ch domain.Channel) *mockProvider {
	return &mockProvider{channel: ch}
}

func (p *mockProvider) Channel() domain.Channel {
	return p.channel
}

func (p *mockProvider) Deliver(_ context.Context, job Job, subject, _ string) (domain.DeliveryResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deliveries = append(p.deliveries, job)
	p.subjects = append(p.subjects, subject)

	if p.err != nil {
		return domain.DeliveryResult{MessageID: job.MessageID, Channel: p.channel, ErrorMessage: p.err.Error()}, p.err
	}
	if p.fail {
		return domain.DeliveryResult{MessageID: job.MessageID, Channel: p.channel, ErrorMessage: "rejected"}, nil
	}

	now := time.Now()
	return domain.DeliveryResult{Success: true, MessageID: job.MessageID, Channel: p.channel, SentAt: &now}, nil
}

func (p *mockProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deliveries)
}

func TestRegistry_Deliver(t *testing.T) {
	email := newMockProvider(domain.ChannelEmail)
	registry := NewRegistry(email)

	result, err := registry.Deliver(context.Background(), Job{MessageID: "m1", Channel: domain.ChannelEmail}, "subj", "body")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "m1", result.MessageID)
	assert.Equal(t, 1, email.calls())
}

func TestRegistry_Deliver_NoProvider(t *testing.T) {
	registry := NewRegistry()

	result, err := registry.Deliver(context.Background(), Job{MessageID: "m1", Channel: domain.ChannelSMS}, "subj", "body")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNoProvider)
	assert.False(t, isRetryable(err))
	assert.False(t, result.Success)
	assert.Equal(t, "No delivery provider configured for channel sms", result.ErrorMessage)
}

func TestRegistry_RegisterProvider_Replaces(t *testing.T) {
	first := newMockProvider(domain.ChannelPush)
	second := newMockProvider(domain.ChannelPush)
	registry := NewRegistry(first)
	registry.RegisterProvider(second)

	_, err := registry.Deliver(context.Background(), Job{Channel: domain.ChannelPush}, "", "")
	require.NoError(t, err)

	assert.Equal(t, 0, first.calls())
	assert.Equal(t, 1, second.calls())
}

func TestRegistry_AvailableChannels(t *testing.T) {
	registry := NewRegistry(
		newMockProvider(domain.ChannelSMS),
		newMockProvider(domain.ChannelEmail),
		newMockProvider(domain.ChannelInApp),
	)

	assert.Equal(t,
		[]domain.Channel{domain.ChannelEmail, domain.ChannelInApp, domain.ChannelSMS},
		registry.AvailableChannels(),
	)
}

func TestRegistry_PropagatesProviderError(t *testing.T) {
	p := newMockProvider(domain.ChannelEmail)
	p.err = errors.New("smtp down")
	registry := NewRegistry(p)

	_, err := registry.Deliver(context.Background(), Job{Channel: domain.ChannelEmail}, "", "")
	assert.EqualError(t, err, "smtp down")
}
