package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PathViews is one aggregated row of the daily page view table.
type PathViews struct {
	Day   time.Time `json:"day"`
	Path  string    `json:"path"`
	Views int64     `json:"views"`
}

// SalesSummary aggregates order metrics for a date range.
type SalesSummary struct {
	AllOrders  int64 `json:"all_orders"`
	PaidOrders int64 `json:"paid_orders"`
	Revenue    int64 `json:"revenue"`
	Savings    int64 `json:"savings"`
}

// Store persists rolled-up analytics in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertDailyViews folds a counter delta into the daily page view table.
func (s *Store) UpsertDailyViews(ctx context.Context, day time.Time, path string, views int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_view_daily (day, path, views)
		VALUES ($1, $2, $3)
		ON CONFLICT (day, path) DO UPDATE SET views = page_view_daily.views + EXCLUDED.views`,
		day, path, views)
	if err != nil {
		return fmt.Errorf("upsert daily views: %w", err)
	}
	return nil
}

// TopPaths returns the most viewed paths between from and to inclusive.
func (s *Store) TopPaths(ctx context.Context, from, to time.Time, limit int) ([]PathViews, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT min(day), path, sum(views)
		FROM page_view_daily
		WHERE day BETWEEN $1 AND $2
		GROUP BY path
		ORDER BY sum(views) DESC
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	defer rows.Close()

	out := []PathViews{}
	for rows.Next() {
		var pv PathViews
		if err := rows.Scan(&pv.Day, &pv.Path, &pv.Views); err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

// Sales aggregates order counts and revenue between from and to.
func (s *Store) Sales(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status IN ('paid', 'fulfilled')),
		       COALESCE(sum(total) FILTER (WHERE status IN ('paid', 'fulfilled')), 0),
		       COALESCE(sum(savings) FILTER (WHERE status IN ('paid', 'fulfilled')), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2`, from, to)
	var sum SalesSummary
	if err := row.Scan(&sum.AllOrders, &sum.PaidOrders, &sum.Revenue, &sum.Savings); err != nil {
		return SalesSummary{}, fmt.Errorf("sales summary: %w", err)
	}
	return sum, nil
}
