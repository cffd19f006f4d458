package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-streamshop/internal/analytics"
)

type stubQueries struct {
	upserts    map[string]int64
	salesCalls int
}

func newStubQueries() *stubQueries {
	return &stubQueries{upserts: map[string]int64{}}
}

func (s *stubQueries) UpsertDailyViews(_ context.Context, day time.Time, path string, views int64) error {
	s.upserts[day.Format("2006-01-02")+path] += views
	return nil
}

func (s *stubQueries) TopPaths(context.Context, time.Time, time.Time, int) ([]analytics.PathViews, error) {
	return []analytics.PathViews{{Path: "/products/fire-stick-4k", Views: 42}}, nil
}

func (s *stubQueries) Sales(context.Context, time.Time, time.Time) (analytics.SalesSummary, error) {
	s.salesCalls++
	return analytics.SalesSummary{AllOrders: 3, PaidOrders: 2, Revenue: 51000, Savings: 9000}, nil
}

func newTestService(t *testing.T) (*analytics.Service, *stubQueries, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queries := newStubQueries()
	return &analytics.Service{Q: queries, R: rdb, TTL: time.Minute, DefaultRange: 30}, queries, mr
}

func TestTrackAndRollup(t *testing.T) {
	svc, queries, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Track(ctx, "/products/fire-stick-4k"); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	if err := svc.Track(ctx, "/plans?devices=3"); err != nil {
		t.Fatalf("track: %v", err)
	}

	flushed, err := svc.Rollup(ctx, time.Now())
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if flushed != 2 {
		t.Fatalf("expected 2 paths flushed, got %d", flushed)
	}

	day := time.Now().UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	if got := queries.upserts[day+"/products/fire-stick-4k"]; got != 3 {
		t.Fatalf("expected 3 views upserted, got %d", got)
	}
	// Query strings are stripped during normalization.
	if got := queries.upserts[day+"/plans"]; got != 1 {
		t.Fatalf("expected 1 view upserted for /plans, got %d", got)
	}

	// A second rollup finds nothing left to flush.
	flushed, err = svc.Rollup(ctx, time.Now())
	if err != nil {
		t.Fatalf("second rollup: %v", err)
	}
	if flushed != 0 {
		t.Fatalf("expected 0 paths on second rollup, got %d", flushed)
	}
}

func TestTrackRejectsEmptyPath(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Track(context.Background(), "   "); err == nil {
		t.Fatal("expected empty path rejection")
	}
}

func TestOverviewCached(t *testing.T) {
	svc, queries, _ := newTestService(t)
	ctx := context.Background()
	from := time.Now().Add(-24 * time.Hour).Truncate(24 * time.Hour)
	to := time.Now().Truncate(24 * time.Hour)

	first, err := svc.OverviewRange(ctx, from, to)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Sales.Revenue != 51000 {
		t.Fatalf("unexpected revenue: %d", first.Sales.Revenue)
	}
	if _, err := svc.OverviewRange(ctx, from, to); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if queries.salesCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.salesCalls)
	}
}
