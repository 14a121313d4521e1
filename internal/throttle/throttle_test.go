package throttle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLockout(t *testing.T, th Throttle, key string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, th.Check(ctx, key))
		require.NoError(t, th.Fail(ctx, key))
	}
	assert.ErrorIs(t, th.Check(ctx, key), ErrLocked)

	require.NoError(t, th.Reset(ctx, key))
	assert.NoError(t, th.Check(ctx, key))
}

func TestMemoryLockoutAndReset(t *testing.T) {
	exerciseLockout(t, NewMemory(Options{MaxAttempts: 3, Window: time.Minute}), LoginKey("patient", "9990001111"))
}

func TestMemoryWindowExpires(t *testing.T) {
	m := NewMemory(Options{MaxAttempts: 2, Window: time.Minute})
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()
	key := LoginKey("doctor", "5550000000")

	require.NoError(t, m.Fail(ctx, key))
	require.NoError(t, m.Fail(ctx, key))
	assert.ErrorIs(t, m.Check(ctx, key), ErrLocked)

	now = now.Add(time.Minute)
	assert.NoError(t, m.Check(ctx, key))
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	m := NewMemory(Options{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()
	require.NoError(t, m.Fail(ctx, LoginKey("patient", "1")))
	assert.ErrorIs(t, m.Check(ctx, LoginKey("patient", "1")), ErrLocked)
	assert.NoError(t, m.Check(ctx, LoginKey("doctor", "1")))
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.normalized()
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, 15*time.Minute, opts.Window)
}

func TestRedisLockoutAndReset(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for redis tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	key := LoginKey("patient", uuid.NewString())
	t.Cleanup(func() { client.Del(context.Background(), key) })
	exerciseLockout(t, NewRedis(client, Options{MaxAttempts: 3, Window: time.Minute}), key)
}

func TestMemorySweepsExpiredCounters(t *testing.T) {
	m := NewMemory(Options{MaxAttempts: 3, Window: time.Minute})
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Fail(ctx, LoginKey("patient", "1")))
	require.NoError(t, m.Fail(ctx, LoginKey("patient", "2")))
	assert.Len(t, m.counters, 2)

	now = now.Add(time.Minute)
	require.NoError(t, m.Fail(ctx, LoginKey("patient", "3")))
	assert.Len(t, m.counters, 1)
}
