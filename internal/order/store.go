package order

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRow mirrors one orders table row.
type OrderRow struct {
	ID        string
	Email     string
	Status    Status
	Subtotal  int64
	Savings   int64
	Total     int64
	Currency  string
	CreatedAt time.Time
}

// ItemRow mirrors one order_items table row.
type ItemRow struct {
	ID          string
	OrderID     string
	ProductID   string
	Description string
	Qty         int
	UnitPrice   int64
	LineTotal   int64
}

// Store runs order queries against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateFromCart snapshots a cart into an order inside one transaction: the
// order and its items are written, then the cart is emptied and expired so a
// replayed checkout cannot double-charge.
func (s *Store) CreateFromCart(ctx context.Context, o OrderRow, items []ItemRow, cartID string) (OrderRow, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OrderRow{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO orders (email, status, subtotal, savings, total, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		o.Email, string(o.Status), o.Subtotal, o.Savings, o.Total, o.Currency).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return OrderRow{}, fmt.Errorf("create order: %w", err)
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO order_items (order_id, product_id, description, qty, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, nullable(it.ProductID), it.Description, it.Qty, it.UnitPrice, it.LineTotal); err != nil {
			return OrderRow{}, fmt.Errorf("create order item: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return OrderRow{}, fmt.Errorf("clear cart: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET expires_at = now() WHERE id = $1`, cartID); err != nil {
		return OrderRow{}, fmt.Errorf("expire cart: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return OrderRow{}, err
	}
	return o, nil
}

// Get fetches one order with its items.
func (s *Store) Get(ctx context.Context, id string) (OrderRow, []ItemRow, error) {
	var o OrderRow
	var status string
	err := s.pool.QueryRow(ctx, `SELECT id, email, status, subtotal, savings, total, currency, created_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Email, &status, &o.Subtotal, &o.Savings, &o.Total, &o.Currency, &o.CreatedAt)
	if err != nil {
		return OrderRow{}, nil, err
	}
	o.Status = Status(status)

	rows, err := s.pool.Query(ctx, `SELECT id, order_id, COALESCE(product_id::text, ''), description, qty, unit_price, line_total
		FROM order_items WHERE order_id = $1`, id)
	if err != nil {
		return OrderRow{}, nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	items := []ItemRow{}
	for rows.Next() {
		var it ItemRow
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Description, &it.Qty, &it.UnitPrice, &it.LineTotal); err != nil {
			return OrderRow{}, nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return OrderRow{}, nil, fmt.Errorf("iterate order items: %w", err)
	}
	return o, items, nil
}

// List returns orders newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status string, limit, offset int) ([]OrderRow, error) {
	query := `SELECT id, email, status, subtotal, savings, total, currency, created_at FROM orders`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := []OrderRow{}
	for rows.Next() {
		var o OrderRow
		var st string
		if err := rows.Scan(&o.ID, &o.Email, &st, &o.Subtotal, &o.Savings, &o.Total, &o.Currency, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = Status(st)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// UpdateStatus moves an order to a new status only when the stored status
// still matches the expected one.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
