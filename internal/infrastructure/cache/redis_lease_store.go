package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLeasePrefix = "cashflow:lease:"

var _ LeaseStore = (*RedisLeaseStore)(nil)

// RedisLeaseStore implements LeaseStore with SETNX, shared by every replica
type RedisLeaseStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLeaseStoreWithClient creates a store on an existing client.
// The caller keeps ownership of the client.
func NewRedisLeaseStoreWithClient(client *redis.Client, keyPrefix string) *RedisLeaseStore {
	if keyPrefix == "" {
		keyPrefix = defaultLeasePrefix
	}
	return &RedisLeaseStore{client: client, keyPrefix: keyPrefix}
}

// TryAcquire sets the key only if it does not exist, with ttl, in one atomic call
func (s *RedisLeaseStore) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return ok, nil
}

// Held checks whether key is leased
func (s *RedisLeaseStore) Held(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the client belongs to the caller
func (s *RedisLeaseStore) Close() error {
	return nil
}
