package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills the bucket for the time elapsed since the last call, then takes one token.
// Returns {allowed, remaining_tokens, ts_ms}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end
ts = now

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens, ts}
`

type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Allow takes a token from the bucket at key. Buckets hold burst tokens and refill at rate tokens per second.
func (tb *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	switch {
	case key == "":
		return Result{}, errors.New("rate limiter key is empty")
	case rate <= 0:
		return Result{}, errors.New("rate limiter rate must be positive")
	case burst <= 0:
		return Result{}, errors.New("rate limiter burst must be positive")
	}

	ttl := bucketTTL(rate, burst)
	res, err := tb.script.Run(ctx, tb.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Result{}, errors.Wrap(err, "running token bucket script")
	}
	if len(res) < 3 {
		return Result{}, errors.New("invalid token bucket script response")
	}

	// lua numbers are truncated to integers on the way out
	allowed := toInt(res[0]) == 1
	remaining := toInt(res[1])

	result := Result{Allowed: allowed, Limit: burst, Remaining: int(remaining)}
	if !allowed {
		result.RetryAfter = time.Duration(float64(time.Second) / rate)
	}
	return result, nil
}

// bucketTTL lets idle buckets expire once they would be full again, with some slack.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	}
	return 0
}
