package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/config"
)

// deliveryKeyPrefix namespaces webhook delivery ids in Redis
const deliveryKeyPrefix = "webhook:delivery:"

// RedisDeliveryStore implements DeliveryDedup on Redis. Suitable for
// multi-instance deployments where every instance must agree on which
// deliveries were already accepted.
type RedisDeliveryStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDeliveryStore creates a Redis-backed delivery dedup store and
// verifies the connection.
func NewRedisDeliveryStore(cfg config.RedisConfig) (*RedisDeliveryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDeliveryStore{
		client:    client,
		keyPrefix: deliveryKeyPrefix,
	}, nil
}

// NewRedisDeliveryStoreWithClient creates a store with an existing Redis
// client, useful for tests or when sharing a client across components.
func NewRedisDeliveryStoreWithClient(client *redis.Client, keyPrefix string) *RedisDeliveryStore {
	if keyPrefix == "" {
		keyPrefix = deliveryKeyPrefix
	}
	return &RedisDeliveryStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkSeen records a delivery id with a TTL using SETNX, so concurrent
// deliveries of the same id race to exactly one winner.
func (s *RedisDeliveryStore) MarkSeen(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	key := s.keyPrefix + deliveryID

	isNew, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery as seen: %w", err)
	}
	return isNew, nil
}

// Seen reports whether a delivery id has already been recorded.
func (s *RedisDeliveryStore) Seen(ctx context.Context, deliveryID string) (bool, error) {
	key := s.keyPrefix + deliveryID

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery id: %w", err)
	}
	return exists > 0, nil
}

// Close closes the Redis client.
func (s *RedisDeliveryStore) Close() error {
	return s.client.Close()
}

var _ shared.DeliveryDedup = (*RedisDeliveryStore)(nil)
