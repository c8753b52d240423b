package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/frostclub/internal/config"
)

const keyCheckoutClient = "checkout:client:%s"

var ErrRateLimited = errors.New("rate_limited")

// Limiter guards checkout endpoints and serializes reconciliation per session.
// A nil or disabled Limiter allows everything.
type Limiter struct {
	bucket *TokenBucket
	lock   *SessionLock

	checkoutRate  float64
	checkoutBurst int
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{
		bucket:        NewTokenBucket(client),
		lock:          NewSessionLock(client, defaultReconcileLockTTL),
		checkoutRate:  cfg.RateLimit.CheckoutRate,
		checkoutBurst: cfg.RateLimit.CheckoutBurst,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *Limiter) AllowCheckout(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() || l.checkoutRate <= 0 || l.checkoutBurst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutClient, strings.TrimSpace(clientKey)), l.checkoutRate, l.checkoutBurst)
}

// LockSession returns ok=true with an empty token when locking is disabled.
func (l *Limiter) LockSession(ctx context.Context, sessionID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.lock.Acquire(ctx, sessionID)
}

func (l *Limiter) UnlockSession(ctx context.Context, sessionID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.lock.Release(ctx, sessionID, token)
}
