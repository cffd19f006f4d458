package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Checker probes the process dependencies.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// ready is flipped off during shutdown so load balancers drain traffic
// before the listener closes.
var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles the process-wide readiness gate.
func SetReady(v bool) { ready.Store(v) }

// Live always answers ok while the process runs.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes the database and redis and reports per-dependency status.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() || h.Checker == nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	status := map[string]string{
		"db":    probe(func() error { return h.Checker.PingDB(ctx, orDefault(h.DBTimeout, 500*time.Millisecond)) }),
		"redis": probe(func() error { return h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond)) }),
	}

	code := http.StatusOK
	for _, v := range status {
		if v != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func probe(ping func() error) string {
	if err := ping(); err != nil {
		return err.Error()
	}
	return "ok"
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
