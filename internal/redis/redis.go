package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Service struct {
	client *redis.Client
	prefix string
}

func New(redisURL, prefix string) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Service {
	if prefix == "" {
		prefix = "avatarcast"
	}
	return &Service{client: client, prefix: prefix}
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *Service) Client() *redis.Client {
	return s.client
}

func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Key namespaces a key under the configured prefix.
func (s *Service) Key(parts ...string) string {
	key := s.prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// CacheAudio remembers the audio file produced for a synthesis cache key.
func (s *Service) CacheAudio(ctx context.Context, cacheKey, audioPath string, ttl time.Duration) error {
	return s.client.Set(ctx, s.Key("tts", cacheKey), audioPath, ttl).Err()
}

// CachedAudio returns the audio path stored for a cache key, if any.
func (s *Service) CachedAudio(ctx context.Context, cacheKey string) (string, bool, error) {
	path, err := s.client.Get(ctx, s.Key("tts", cacheKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cached audio: %w", err)
	}
	return path, true, nil
}

// EvictAudio drops a cache entry whose file no longer exists.
func (s *Service) EvictAudio(ctx context.Context, cacheKey string) error {
	return s.client.Del(ctx, s.Key("tts", cacheKey)).Err()
}
