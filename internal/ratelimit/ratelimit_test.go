package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	ctx := context.Background()

	assert.False(t, l.Enabled())

	res, err := l.AllowCheckout(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := l.LockSession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.UnlockSession(ctx, "cs_test_1", token))
}

func TestNilClientConstructors(t *testing.T) {
	assert.Nil(t, NewSessionLock(nil, time.Second))
	assert.Nil(t, NewTokenBucket(nil))

	_, _, err := NewSessionLock(nil, time.Second).Acquire(context.Background(), "cs_1")
	assert.Error(t, err)
	assert.NoError(t, NewSessionLock(nil, time.Second).Release(context.Background(), "cs_1", "t"))
}

func TestSessionLockKey(t *testing.T) {
	key, err := sessionLockKey("  cs_test_1 ")
	require.NoError(t, err)
	assert.Equal(t, "reconcile:cs_test_1", key)

	_, err = sessionLockKey(" ")
	assert.ErrorIs(t, err, errEmptySessionID)
}

func TestNewSessionLockDefaultsTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, defaultReconcileLockTTL, NewSessionLock(client, 0).ttl)
	assert.Equal(t, time.Minute, NewSessionLock(client, time.Minute).ttl)
}

func TestBuildResultRetryAfter(t *testing.T) {
	denied := buildResult(false, 0.5, 1_000, 0.5, 5)
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)
	assert.Equal(t, 5, denied.Limit)

	allowed := buildResult(true, 3.7, 1_000, 0.5, 5)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 3, allowed.Remaining)
	assert.Zero(t, allowed.RetryAfter)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

func TestCasts(t *testing.T) {
	assert.Equal(t, int64(7), castToInt("7"))
	assert.Equal(t, int64(7), castToInt(int64(7)))
	assert.InDelta(t, 2.5, castToFloat("2.5"), 0.0001)
	assert.InDelta(t, 2.0, castToFloat(int64(2)), 0.0001)
}
