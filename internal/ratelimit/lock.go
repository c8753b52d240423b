package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyReconcileLock        = "reconcile:%s"
	defaultReconcileLockTTL = 30 * time.Second
)

// Only the holder's token may delete the key.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errEmptySessionID = errors.New("session id is empty")

// SessionLock serializes reconciliation of one checkout session across
// instances. Holders that crash release implicitly when the ttl runs out.
type SessionLock struct {
	client *redis.Client
	unlock *redis.Script
	ttl    time.Duration
}

func NewSessionLock(client *redis.Client, ttl time.Duration) *SessionLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultReconcileLockTTL
	}
	return &SessionLock{client: client, unlock: redis.NewScript(unlockScript), ttl: ttl}
}

func sessionLockKey(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errEmptySessionID
	}
	return fmt.Sprintf(keyReconcileLock, sessionID), nil
}

// Acquire returns ok=false without error while another holder has the session.
func (l *SessionLock) Acquire(ctx context.Context, sessionID string) (string, bool, error) {
	if l == nil {
		return "", false, errors.New("session lock not configured")
	}
	key, err := sessionLockKey(sessionID)
	if err != nil {
		return "", false, err
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *SessionLock) Release(ctx context.Context, sessionID, token string) error {
	if l == nil || token == "" {
		return nil
	}
	key, err := sessionLockKey(sessionID)
	if err != nil {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{key}, token).Err()
}
