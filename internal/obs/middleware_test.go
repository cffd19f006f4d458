package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noah-isme/backend-streamshop/internal/obs"
)

func observe(t *testing.T, metrics *obs.HTTPMetrics, route string, status int) *httptest.ResponseRecorder {
	t.Helper()
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodGet, route, nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), route))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("streamshop", []float64{1, 10}, registry)

	rr := observe(t, metrics, "/health/ready", http.StatusNoContent)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204"))
	if total != 1 {
		t.Fatalf("counter = %v, want 1", total)
	}
	if samples := testutil.CollectAndCount(metrics.ReqDur); samples == 0 {
		t.Fatal("expected a histogram sample")
	}
	if inFlight := testutil.ToFloat64(metrics.InFlight); inFlight != 0 {
		t.Fatalf("in-flight gauge = %v after completion, want 0", inFlight)
	}
}

func TestMiddlewareLabelsStatusPerRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("streamshop", nil, registry)

	observe(t, metrics, "/api/v1/products", http.StatusOK)
	observe(t, metrics, "/api/v1/products", http.StatusOK)
	observe(t, metrics, "/api/v1/products", http.StatusNotFound)

	ok := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/products", "200"))
	if ok != 2 {
		t.Fatalf("200 counter = %v, want 2", ok)
	}
	missing := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/products", "404"))
	if missing != 1 {
		t.Fatalf("404 counter = %v, want 1", missing)
	}
}
