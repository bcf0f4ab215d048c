package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "avatarcast:queue"

// RedisQueue is a FIFO of job ids backed by a Redis list. Enqueue is RPUSH
// and Dequeue is LPOP, so each id is handed to exactly one consumer.
type RedisQueue struct {
	client *redis.Client
	key    string
}

var _ job.Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	slog.Info("Redis queue initialized", "key", key)
	return &RedisQueue{client: client, key: key}
}

// Enqueue appends an id to the tail of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	if err := q.client.RPush(ctx, q.key, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to push job id: %w", err)
	}
	slog.Debug("Job enqueued", "job_id", id, "key", q.key)
	return nil
}

// Dequeue pops the head of the list. An empty list reports ok=false.
func (q *RedisQueue) Dequeue(ctx context.Context) (uuid.UUID, bool, error) {
	raw, err := q.client.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to pop job id: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		// Not retried: the entry is already gone from the list.
		return uuid.Nil, false, fmt.Errorf("malformed queue entry %q: %w", raw, err)
	}
	return id, true, nil
}

// Len returns the number of pending ids.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
