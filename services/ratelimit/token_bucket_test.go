package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jumuiya/core"
)

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(0.5, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestNewRedeemLimiter_Disabled(t *testing.T) {
	l, err := NewRedeemLimiter(&core.Config{})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	res, err := l.AllowRedeem(context.Background(), "someone")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.NoError(t, l.Close())
}

func TestNewRedeemLimiter_InvalidConfig(t *testing.T) {
	_, err := NewRedeemLimiter(&core.Config{RateLimit: core.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewRedeemLimiter(&core.Config{RateLimit: core.RateLimitConfig{Enabled: true, RedisAddr: "localhost:6379"}})
	assert.Error(t, err)
}

func TestTokenBucket_InvalidArgs(t *testing.T) {
	tb := NewTokenBucket(redis.NewClient(&redis.Options{Addr: "localhost:0"}))
	ctx := context.Background()

	_, err := tb.Allow(ctx, "", 1, 1)
	assert.Error(t, err)
	_, err = tb.Allow(ctx, "k", 0, 1)
	assert.Error(t, err)
	_, err = tb.Allow(ctx, "k", 1, 0)
	assert.Error(t, err)
}

// TestTokenBucket_Allow needs a redis server: REDIS_ADDR=localhost:6379
func TestTokenBucket_Allow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	key := "jumuiya:test:" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, key)

	tb := NewTokenBucket(client)
	for i := 0; i < 3; i++ {
		res, err := tb.Allow(ctx, key, 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
	}

	res, err := tb.Allow(ctx, key, 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.RetryAfter > 0)
}
