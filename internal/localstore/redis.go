package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsa498/digitalmarketing/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces local snapshots in a shared Redis.
const RedisKeyPrefix = "storefront:cart:local:"

// RedisStore keeps the snapshot in Redis with no expiry.
// The client is owned by the caller.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store for the given storage key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) redisKey() string {
	return RedisKeyPrefix + s.key
}

// Load reads the snapshot from Redis.
func (s *RedisStore) Load(ctx context.Context) ([]model.CartLineItem, error) {
	data, err := s.client.Get(ctx, s.redisKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return decode(data)
}

// Save writes the snapshot to Redis.
func (s *RedisStore) Save(ctx context.Context, items []model.CartLineItem) error {
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("failed to encode local cart: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close does not close the shared client.
func (s *RedisStore) Close() error {
	return nil
}

var _ Store = (*RedisStore)(nil)
