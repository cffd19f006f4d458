package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductRow mirrors one products table row.
type ProductRow struct {
	ID          string
	Slug        string
	Name        string
	Description string
	BasePrice   int64
	Currency    string
	ImageURL    string
	Category    string
	Active      bool
}

// PlanRow is one subscription plan with its full device price table.
type PlanRow struct {
	ID             string
	Slug           string
	Name           string
	DurationMonths int
	SortOrder      int
	DevicePrices   []PlanPriceRow
}

// PlanPriceRow is one device-count entry of a plan.
type PlanPriceRow struct {
	Devices     int
	Price       int64
	ProductCode string
}

// Store runs catalog queries against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListFilter narrows product listings. MinPrice and MaxPrice are minor units;
// a negative value leaves the bound open.
type ListFilter struct {
	Category string
	Query    string
	MinPrice int64
	MaxPrice int64
	Sort     string
	Limit    int
	Offset   int
}

func buildListWhere(f ListFilter) (string, []any) {
	clause := " WHERE active"
	args := []any{}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, c)
		clause += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		clause += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if f.MinPrice >= 0 {
		args = append(args, f.MinPrice)
		clause += fmt.Sprintf(" AND base_price >= $%d", len(args))
	}
	if f.MaxPrice >= 0 {
		args = append(args, f.MaxPrice)
		clause += fmt.Sprintf(" AND base_price <= $%d", len(args))
	}
	return clause, args
}

func orderClause(sort string) string {
	switch sort {
	case "price_asc":
		return " ORDER BY base_price, name"
	case "price_desc":
		return " ORDER BY base_price DESC, name"
	case "newest":
		return " ORDER BY created_at DESC"
	default:
		return " ORDER BY name"
	}
}

// ListProducts returns active products matching the filter.
func (s *Store) ListProducts(ctx context.Context, f ListFilter) ([]ProductRow, error) {
	where, args := buildListWhere(f)
	query := `SELECT id, slug, name, description, base_price, currency, image_url, category, active
		FROM products` + where + orderClause(f.Sort)
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// CountProducts counts matching products for pagination metadata.
func (s *Store) CountProducts(ctx context.Context, f ListFilter) (int64, error) {
	where, args := buildListWhere(f)
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// GetProductBySlug fetches one product by slug. Returns pgx.ErrNoRows when
// absent.
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (ProductRow, error) {
	var p ProductRow
	err := s.pool.QueryRow(ctx, `SELECT id, slug, name, description, base_price, currency, image_url, category, active
		FROM products WHERE slug = $1 AND active`, slug).
		Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BasePrice, &p.Currency, &p.ImageURL, &p.Category, &p.Active)
	if err != nil {
		return ProductRow{}, err
	}
	return p, nil
}

// GetProductByID fetches one product by id regardless of active flag.
func (s *Store) GetProductByID(ctx context.Context, id string) (ProductRow, error) {
	var p ProductRow
	err := s.pool.QueryRow(ctx, `SELECT id, slug, name, description, base_price, currency, image_url, category, active
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BasePrice, &p.Currency, &p.ImageURL, &p.Category, &p.Active)
	if err != nil {
		return ProductRow{}, err
	}
	return p, nil
}

// ListPlans returns active plans with device prices, ordered by sort order.
func (s *Store) ListPlans(ctx context.Context) ([]PlanRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, slug, name, duration_months, sort_order
		FROM plans WHERE active ORDER BY sort_order, duration_months`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []PlanRow{}
	index := map[string]int{}
	for rows.Next() {
		var p PlanRow
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.DurationMonths, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		index[p.ID] = len(plans)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	if len(plans) == 0 {
		return plans, nil
	}

	priceRows, err := s.pool.Query(ctx, `SELECT pp.plan_id, pp.devices, pp.price, pp.product_code
		FROM plan_prices pp JOIN plans p ON p.id = pp.plan_id
		WHERE p.active ORDER BY pp.plan_id, pp.devices`)
	if err != nil {
		return nil, fmt.Errorf("list plan prices: %w", err)
	}
	defer priceRows.Close()
	for priceRows.Next() {
		var planID string
		var pr PlanPriceRow
		if err := priceRows.Scan(&planID, &pr.Devices, &pr.Price, &pr.ProductCode); err != nil {
			return nil, fmt.Errorf("scan plan price: %w", err)
		}
		if i, ok := index[planID]; ok {
			plans[i].DevicePrices = append(plans[i].DevicePrices, pr)
		}
	}
	if err := priceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan prices: %w", err)
	}
	return plans, nil
}

// CreateProduct inserts a product and returns the stored row.
func (s *Store) CreateProduct(ctx context.Context, p ProductRow) (ProductRow, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO products (slug, name, description, base_price, currency, image_url, category, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, slug, name, description, base_price, currency, image_url, category, active`,
		p.Slug, p.Name, p.Description, p.BasePrice, p.Currency, p.ImageURL, p.Category, p.Active).
		Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BasePrice, &p.Currency, &p.ImageURL, &p.Category, &p.Active)
	if err != nil {
		return ProductRow{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// UpdateProductPrice changes a product's base price.
func (s *Store) UpdateProductPrice(ctx context.Context, id string, basePrice int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE products SET base_price = $2, updated_at = now() WHERE id = $1`, id, basePrice)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertPlanPrice writes one device-count entry for a plan.
func (s *Store) UpsertPlanPrice(ctx context.Context, planID string, pr PlanPriceRow) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO plan_prices (plan_id, devices, price, product_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id, devices) DO UPDATE SET price = EXCLUDED.price, product_code = EXCLUDED.product_code`,
		planID, pr.Devices, pr.Price, pr.ProductCode)
	if err != nil {
		return fmt.Errorf("upsert plan price: %w", err)
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]ProductRow, error) {
	out := []ProductRow{}
	for rows.Next() {
		var p ProductRow
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BasePrice, &p.Currency, &p.ImageURL, &p.Category, &p.Active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}
