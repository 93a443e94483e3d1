package inapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

type failingStore struct{}

func (failingStore) Append(_ context.Context, _ string, _ domain.InboxEntry) error {
	return errors.New("store unavailable")
}

func (failingStore) List(_ context.Context, _ string) ([]domain.InboxEntry, error) {
	return nil, errors.New("store unavailable")
}

func (failingStore) Clear(_ context.Context, _ string) error {
	return errors.New("store unavailable")
}

func TestProvider_DeliverAndRead(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(NewMemoryStore())

	assert.Equal(t, domain.ChannelInApp, p.Channel())

	for _, subject := range []string{"first", "second"} {
		result, err := p.Deliver(ctx, notifications.Job{MessageID: subject, UserID: "u1"}, subject, "body of "+subject)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.NotNil(t, result.SentAt)
	}

	entries, err := p.GetUserMessages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Subject)
	assert.Equal(t, "body of second", entries[1].Body)
	assert.False(t, entries[1].Timestamp.Before(entries[0].Timestamp))

	other, err := p.GetUserMessages(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, p.ClearUserMessages(ctx, "u1"))
	entries, err = p.GetUserMessages(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProvider_DeliverStoreError(t *testing.T) {
	p := NewProvider(failingStore{})

	result, err := p.Deliver(context.Background(), notifications.Job{MessageID: "m1", UserID: "u1"}, "s", "b")
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "store unavailable")
}

func TestMemoryStore_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, "u1", domain.InboxEntry{Subject: "a"}))

	entries, err := store.List(ctx, "u1")
	require.NoError(t, err)
	entries[0].Subject = "mutated"

	again, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Subject)
}
