package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noah-isme/backend-streamshop/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func readyStatus(t *testing.T, c health.Checker) (int, map[string]string) {
	t.Helper()
	h := health.Handler{Checker: c, DBTimeout: 50 * time.Millisecond, RedisTimeout: 50 * time.Millisecond}
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &status)
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("live = %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyAllHealthy(t *testing.T) {
	code, status := readyStatus(t, stubChecker{})
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if status["db"] != "ok" || status["redis"] != "ok" {
		t.Fatalf("status = %#v", status)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	code, status := readyStatus(t, stubChecker{redisErr: errors.New("redis: connection refused")})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", code)
	}
	if status["db"] != "ok" {
		t.Fatalf("db status = %q", status["db"])
	}
	if status["redis"] == "ok" {
		t.Fatal("redis failure must surface in the payload")
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rr.Code)
	}
}
