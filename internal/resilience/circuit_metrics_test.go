package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/resilience"
)

func gaugeFor(target string) float64 {
	return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target))
}

func TestBreakerPublishesMetrics(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	ctx := context.Background()
	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget("trial-function")

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, gaugeFor("trial-function"), "open gauge")

	require.Eventually(t, func() bool { return breaker.Allow(ctx) }, 100*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, gaugeFor("trial-function"), "half-open gauge")

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, gaugeFor("trial-function"), "closed gauge")

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("trial-function")))
	for _, edge := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		count := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("trial-function", edge[0], edge[1]))
		require.Equalf(t, 1.0, count, "transition %s -> %s", edge[0], edge[1])
	}
}
