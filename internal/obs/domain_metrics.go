package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts pricing quote computations by source and result.
	QuoteTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// TrialRequestTotal counts trial provisioning outcomes.
	TrialRequestTotal *prometheus.CounterVec
	// TrialRequestLatency records remote trial provisioning latency in milliseconds.
	TrialRequestLatency *prometheus.HistogramVec
	// PageViewsIngested counts accepted visitor tracking events.
	PageViewsIngested prometheus.Counter
	// AnalyticsRollupTotal counts background rollup runs by outcome.
	AnalyticsRollupTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors. Only the first call has effect.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_total",
			Help:      "Count of pricing quote computations by source and result.",
		}, []string{"source", "result"}))
		CheckoutTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"}))
		TrialRequestTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_request_total",
			Help:      "Count of free-trial provisioning outcomes.",
		}, []string{"result"}))
		TrialRequestLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_request_duration_ms",
			Help:      "Latency of remote trial provisioning calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		PageViewsIngested = registerOrReuse[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_views_ingested_total",
			Help:      "Total number of accepted visitor tracking events.",
		}))
		AnalyticsRollupTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_rollup_total",
			Help:      "Count of analytics rollup runs by outcome.",
		}, []string{"result"}))
	})
}
