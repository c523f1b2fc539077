// Package cache provides the TTL key/value store used to memoize upstream
// weather payloads and generated responses.
package cache

import (
	"context"
	"errors"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a key/value cache with per-entry TTL. Get reports a miss for
// absent or expired entries; Put upserts by key. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type redisStore struct {
	client *redisv9.Client
	log    *zap.SugaredLogger
}

// NewRedis wraps a Redis client as a Store. Expiry is enforced by Redis
// itself, so a Get after the TTL window is a plain miss.
func NewRedis(client *redisv9.Client, log *zap.SugaredLogger) Store {
	return &redisStore{client: client, log: log}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redisv9.Nil) {
			s.log.Warnw("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (s *redisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Warnw("cache write failed", "key", key, "error", err)
	}
}
