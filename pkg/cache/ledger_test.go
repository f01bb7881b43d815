package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to a local Redis on DB 15 or skips the test.
// tests/integration covers the Redis ledger against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func exerciseLedger(t *testing.T, ledger Ledger) {
	t.Helper()
	ctx := context.Background()
	key := KeyFor(testURL)

	done, err := ledger.IsComplete(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, ledger.MarkComplete(ctx, key))
	done, err = ledger.IsComplete(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)

	other, err := ledger.IsComplete(ctx, KeyFor("https://api.github.com/other"))
	require.NoError(t, err)
	assert.False(t, other)

	require.NoError(t, ledger.Unmark(ctx, key))
	done, err = ledger.IsComplete(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, ledger.Unmark(ctx, key), "unmarking twice is not an error")
}

func TestFileLedger(t *testing.T) {
	ledger, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)
	exerciseLedger(t, ledger)
}

func TestRedisLedger(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), "")
	assert.Equal(t, DefaultLedgerKey, ledger.setKey)
	exerciseLedger(t, ledger)
}

func TestNewRedisLedger_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedisLedger(nil, "") })
}
