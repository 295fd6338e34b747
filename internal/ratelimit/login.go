package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/caseline/internal/config"
)

const keyLoginAttempts = "caseline:login:%s"

// LoginLimiter throttles password attempts per email address.
type LoginLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewLoginLimiter returns nil when redis is unavailable or the rate is disabled.
func NewLoginLimiter(client *redis.Client, cfg config.Config) *LoginLimiter {
	if client == nil || cfg.Auth.LoginRate <= 0 {
		return nil
	}
	return &LoginLimiter{
		bucket: NewTokenBucket(client),
		rate:   float64(cfg.Auth.LoginRate) / 60,
		burst:  cfg.Auth.LoginRate,
	}
}

func (l *LoginLimiter) Allow(ctx context.Context, email string) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLoginAttempts, strings.ToLower(strings.TrimSpace(email)))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
