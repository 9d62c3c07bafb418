package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/jumuiya/core"
)

const keyRedeem = "jumuiya:redeem:user:%s"

// RedeemLimiter throttles code redemptions per user, so that codes cannot be guessed by brute force.
type RedeemLimiter struct {
	client *redis.Client
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewRedeemLimiter returns nil, without error, when rate limiting is disabled.
func NewRedeemLimiter(conf *core.Config) (*RedeemLimiter, error) {
	cfg := conf.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if cfg.RedeemRate <= 0 || cfg.RedeemBurst <= 0 {
		return nil, errors.New("redeem rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return &RedeemLimiter{
		client: client,
		bucket: NewTokenBucket(client),
		rate:   cfg.RedeemRate,
		burst:  cfg.RedeemBurst,
	}, nil
}

func (l *RedeemLimiter) Enabled() bool {
	return l != nil
}

// AllowRedeem takes a token from the user's bucket. A disabled limiter allows everything.
func (l *RedeemLimiter) AllowRedeem(ctx context.Context, userID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRedeem, strings.TrimSpace(userID)), l.rate, l.burst)
}

func (l *RedeemLimiter) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.client.Close()
}
