package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamcart/streamcart/internal/metrics"
	"github.com/streamcart/streamcart/internal/models"
)

const (
	streamChatTTL  = 6 * time.Hour
	streamChatKeep = 50 // recent lines replayed to late joiners
)

// RedisStore handles Redis operations: the in-stream chat replay
// buffer and per-user send rate limiting. Optional; when Redis is not
// configured both features are disabled.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// streamChatKey returns the key for a stream's chat replay buffer.
func streamChatKey(streamID string) string {
	return fmt.Sprintf("stream:%s:chat", streamID)
}

// rateLimitKey returns the key for a user's send rate counter.
func rateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:chat:%s", userID)
}

// AddStreamChat appends a chat line to the stream's replay buffer,
// trimming it to the most recent entries.
func (s *RedisStore) AddStreamChat(ctx context.Context, streamID string, line *models.StreamChat) error {
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}

	defer observeRedis(time.Now())
	key := streamChatKey(streamID)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(line.Timestamp),
		Member: string(data),
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(streamChatKeep)-1)
	pipe.Expire(ctx, key, streamChatTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentStreamChat returns the buffered chat lines for a stream in
// ascending timestamp order.
func (s *RedisStore) RecentStreamChat(ctx context.Context, streamID string) ([]models.StreamChat, error) {
	results, err := s.client.ZRange(ctx, streamChatKey(streamID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	lines := make([]models.StreamChat, 0, len(results))
	for _, data := range results {
		var line models.StreamChat
		if err := json.Unmarshal([]byte(data), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// DropStreamChat discards a stream's replay buffer when it ends.
func (s *RedisStore) DropStreamChat(ctx context.Context, streamID string) error {
	return s.client.Del(ctx, streamChatKey(streamID)).Err()
}

// AllowSend checks and counts one message send against the user's
// rate limit window. Returns false once the limit is exceeded.
func (s *RedisStore) AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	defer observeRedis(time.Now())
	key := rateLimitKey(userID)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}
