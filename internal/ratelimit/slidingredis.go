package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter counts events per key in a sliding window using a redis sorted set.
// Scores are event timestamps; members older than the window fall out on
// every call, so the count always reflects the trailing window exactly.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records one event for key and reports whether the caller is still
// within max events per window. Unconfigured limiters allow everything.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	reset = now.Add(window)
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, reset, nil
	}

	bucket := l.Prefix + key
	event := fmt.Sprintf("%s:%s", key, uuid.NewString())
	oldest := fmt.Sprintf("%f", float64(now.Add(-window).UnixNano()))

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", oldest)
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(now.UnixNano()), Member: event})
	count := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	used := int(count.Val())
	remaining = max - used
	if remaining < 0 {
		remaining = 0
	}
	return used <= max, remaining, reset, nil
}
