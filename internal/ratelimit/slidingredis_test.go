package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterWindowSlides(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	limiter := Limiter{Client: client, Prefix: "rl:"}
	ctx := context.Background()
	const max = 2
	window := 2 * time.Second

	// fill the window
	for i := 1; i <= max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "ip", window, max)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed || remaining != max-i {
			t.Fatalf("allow %d: allowed=%v remaining=%d", i, allowed, remaining)
		}
	}

	if allowed, remaining, _, _ := limiter.Allow(ctx, "ip", window, max); allowed || remaining != 0 {
		t.Fatalf("over limit: allowed=%v remaining=%d", allowed, remaining)
	}

	mr.FastForward(window)
	if allowed, _, _, _ := limiter.Allow(ctx, "ip", window, max); !allowed {
		t.Fatal("events must age out after the window")
	}
}

func TestLimiterUnconfiguredAllows(t *testing.T) {
	allowed, _, _, err := Limiter{}.Allow(context.Background(), "ip", time.Second, 5)
	if err != nil || !allowed {
		t.Fatalf("nil client must allow: allowed=%v err=%v", allowed, err)
	}
}
