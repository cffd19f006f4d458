package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-streamshop/internal/obs"
)

// Querier defines the database access required for analytics operations.
type Querier interface {
	UpsertDailyViews(ctx context.Context, day time.Time, path string, views int64) error
	TopPaths(ctx context.Context, from, to time.Time, limit int) ([]PathViews, error)
	Sales(ctx context.Context, from, to time.Time) (SalesSummary, error)
}

// Overview bundles the dashboard payload.
type Overview struct {
	From     time.Time    `json:"from"`
	To       time.Time    `json:"to"`
	Sales    SalesSummary `json:"sales"`
	TopPaths []PathViews  `json:"top_paths"`
}

// Service ingests page views into redis and serves cached rollups.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Counter hashes outlive the day they cover so the rollup can drain them late.
const counterRetention = 48 * time.Hour

func viewKey(day time.Time) string {
	return cacheKey("pv", day.UTC().Format("2006-01-02"))
}

// Track increments today's counter for the given path.
func (s *Service) Track(ctx context.Context, path string) error {
	if s == nil || s.R == nil {
		return fmt.Errorf("analytics service not configured")
	}
	normalized := normalizePath(path)
	if normalized == "" {
		return fmt.Errorf("empty path")
	}
	key := viewKey(s.now())
	pipe := s.R.Pipeline()
	pipe.HIncrBy(ctx, key, normalized, 1)
	pipe.Expire(ctx, key, counterRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if obs.PageViewsIngested != nil {
		obs.PageViewsIngested.Inc()
	}
	return nil
}

// Rollup drains the counter hash for the given day into Postgres. It returns
// the number of distinct paths flushed.
func (s *Service) Rollup(ctx context.Context, day time.Time) (int, error) {
	if s == nil || s.R == nil || s.Q == nil {
		return 0, fmt.Errorf("analytics service not configured")
	}
	key := viewKey(day)
	counts, err := s.R.HGetAll(ctx, key).Result()
	if err != nil {
		recordRollup("error")
		return 0, err
	}
	if len(counts) == 0 {
		recordRollup("empty")
		return 0, nil
	}
	date := day.UTC().Truncate(24 * time.Hour)
	flushed := 0
	for path, raw := range counts {
		var views int64
		if _, err := fmt.Sscanf(raw, "%d", &views); err != nil || views <= 0 {
			continue
		}
		if err := s.Q.UpsertDailyViews(ctx, date, path, views); err != nil {
			recordRollup("error")
			return flushed, err
		}
		// Subtract what was flushed instead of deleting the key so views
		// tracked during the rollup are not lost.
		if err := s.R.HIncrBy(ctx, key, path, -views).Err(); err != nil {
			recordRollup("error")
			return flushed, err
		}
		flushed++
	}
	recordRollup("ok")
	return flushed, nil
}

// OverviewRange returns the cached dashboard payload for the range.
func (s *Service) OverviewRange(ctx context.Context, from, to time.Time) (Overview, error) {
	if s == nil || s.Q == nil {
		return Overview{}, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "overview", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if cached, ok := s.getOverviewFromCache(ctx, key); ok {
		return cached, nil
	}
	sales, err := s.Q.Sales(ctx, from, to)
	if err != nil {
		return Overview{}, err
	}
	paths, err := s.Q.TopPaths(ctx, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour), 10)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{From: from, To: to, Sales: sales, TopPaths: paths}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) getOverviewFromCache(ctx context.Context, key string) (Overview, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Overview{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Overview{}, false
	}
	var out Overview
	if err := json.Unmarshal(data, &out); err != nil {
		return Overview{}, false
	}
	return out, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

func recordRollup(result string) {
	if obs.AnalyticsRollupTotal != nil {
		obs.AnalyticsRollupTotal.WithLabelValues(result).Inc()
	}
}
