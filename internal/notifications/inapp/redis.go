package inapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bissquit/tourdesk/internal/domain"
)

const inboxKeyPrefix = "tourdesk:inbox:"

// RedisConfig holds Redis inbox configuration.
type RedisConfig struct {
	// MaxEntries caps each inbox; older entries are trimmed. Zero means unbounded.
	MaxEntries int64
	// TTL expires an inbox after the last delivery. Zero means no expiry.
	TTL time.Duration
}

// RedisStore keeps inboxes in Redis lists so they survive restarts and are
// shared between replicas.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisStore creates a Redis-backed inbox store.
func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{client: client, config: config}
}

func inboxKey(userID string) string {
	return inboxKeyPrefix + userID
}

// Append pushes an entry to the tail of the user's list.
func (s *RedisStore) Append(ctx context.Context, userID string, entry domain.InboxEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal inbox entry: %w", err)
	}

	key := inboxKey(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	if s.config.MaxEntries > 0 {
		pipe.LTrim(ctx, key, -s.config.MaxEntries, -1)
	}
	if s.config.TTL > 0 {
		pipe.Expire(ctx, key, s.config.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append inbox entry: %w", err)
	}
	return nil
}

// List returns the user's entries, oldest first.
func (s *RedisStore) List(ctx context.Context, userID string) ([]domain.InboxEntry, error) {
	values, err := s.client.LRange(ctx, inboxKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	entries := make([]domain.InboxEntry, 0, len(values))
	for _, v := range values {
		var entry domain.InboxEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal inbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear deletes the user's list.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, inboxKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear inbox: %w", err)
	}
	return nil
}
