package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultLedgerKey is the Redis set holding completed cache keys.
const DefaultLedgerKey = "ghcc:cache:complete"

// RedisLedger keeps completion marks in a Redis set so that several hosts
// sharing a synced cache directory agree on which files are whole.
type RedisLedger struct {
	redis  *redis.Client
	setKey string
}

// NewRedisLedger creates a ledger in the Redis set setKey
// (default: DefaultLedgerKey).
func NewRedisLedger(redisClient *redis.Client, setKey string) *RedisLedger {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if setKey == "" {
		setKey = DefaultLedgerKey
	}
	return &RedisLedger{
		redis:  redisClient,
		setKey: setKey,
	}
}

// IsComplete implements Ledger.
func (l *RedisLedger) IsComplete(ctx context.Context, key Key) (bool, error) {
	ok, err := l.redis.SIsMember(ctx, l.setKey, key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// MarkComplete implements Ledger.
func (l *RedisLedger) MarkComplete(ctx context.Context, key Key) error {
	if err := l.redis.SAdd(ctx, l.setKey, key.String()).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Unmark implements Ledger.
func (l *RedisLedger) Unmark(ctx context.Context, key Key) error {
	if err := l.redis.SRem(ctx, l.setKey, key.String()).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}
