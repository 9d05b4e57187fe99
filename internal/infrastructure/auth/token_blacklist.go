package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist records revoked token ids until they expire on their own
type TokenBlacklist interface {
	// Revoke blacklists a token id until its natural expiry
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether a token id has been blacklisted
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Close releases store resources
	Close() error
}

const blacklistKeyPrefix = "auth:revoked:"

// RedisTokenBlacklist is the shared-store blacklist for multi-instance
// deployments. Entries carry a TTL matching the token's remaining life, so
// the store cleans itself.
type RedisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist creates a Redis-backed token blacklist
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already expired; nothing to store.
		return nil
	}
	if err := b.client.Set(ctx, blacklistKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := b.client.Get(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return true, nil
}

func (b *RedisTokenBlacklist) Close() error {
	return b.client.Close()
}

var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

// InMemoryTokenBlacklist serves single-instance deployments and tests
type InMemoryTokenBlacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewInMemoryTokenBlacklist creates an in-memory token blacklist
func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{revoked: make(map[string]time.Time)}
}

func (b *InMemoryTokenBlacklist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = expiresAt
	return nil
}

func (b *InMemoryTokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.RLock()
	expiresAt, ok := b.revoked[jti]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		b.mu.Lock()
		delete(b.revoked, jti)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (b *InMemoryTokenBlacklist) Close() error {
	return nil
}

var _ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)
