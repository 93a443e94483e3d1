//go:build integration

package inapp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
	"github.com/bissquit/tourdesk/internal/testutil"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testutil.NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	client := redis.NewClient(&redis.Options{Addr: container.Addr})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	t.Run("deliver and read through provider", func(t *testing.T) {
		provider := NewProvider(NewRedisStore(client, RedisConfig{}))

		job := notifications.Job{MessageID: "m1", UserID: "u1"}
		_, err := provider.Deliver(ctx, job, "First", "one")
		require.NoError(t, err)
		_, err = provider.Deliver(ctx, job, "Second", "two")
		require.NoError(t, err)

		entries, err := provider.GetUserMessages(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "First", entries[0].Subject)
		assert.Equal(t, "two", entries[1].Body)

		require.NoError(t, provider.ClearUserMessages(ctx, "u1"))
		entries, err = provider.GetUserMessages(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("trims to max entries", func(t *testing.T) {
		store := NewRedisStore(client, RedisConfig{MaxEntries: 3})

		for i := range 5 {
			require.NoError(t, store.Append(ctx, "u2", domain.InboxEntry{
				Subject:   fmt.Sprintf("s%d", i),
				Timestamp: time.Now(),
			}))
		}

		entries, err := store.List(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "s2", entries[0].Subject)
		assert.Equal(t, "s4", entries[2].Subject)
	})

	t.Run("sets ttl", func(t *testing.T) {
		store := NewRedisStore(client, RedisConfig{TTL: time.Hour})
		require.NoError(t, store.Append(ctx, "u3", domain.InboxEntry{Subject: "s"}))

		ttl, err := client.TTL(ctx, inboxKey("u3")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		entries, err := NewRedisStore(client, RedisConfig{}).List(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
