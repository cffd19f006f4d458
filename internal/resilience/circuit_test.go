package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/resilience"
)

func TestBreakerOpensAndRecloses(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)

	// two failures over a minimum of two samples trips the breaker
	for i := 0; i < 2; i++ {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
	require.False(t, breaker.Allow(ctx))

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "cool-off expired, probe admitted")
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "successful probe recloses")
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.NewBreaker(1, 0.5, 30*time.Millisecond)

	breaker.Report(ctx, false)
	require.False(t, breaker.Allow(ctx))

	time.Sleep(40 * time.Millisecond)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.False(t, breaker.Allow(ctx), "failed probe reopens immediately")
}

func TestBackoffGrowth(t *testing.T) {
	base := 100 * time.Millisecond

	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, 2*base, resilience.Backoff(base, 2, 0))
	require.Equal(t, 4*base, resilience.Backoff(base, 3, 0))
	require.Equal(t, base, resilience.Backoff(base, 0, 0), "attempts below one clamp to one")

	jittered := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, jittered, 2*base-2*base/5)
	require.LessOrEqual(t, jittered, 2*base+2*base/5)
}
