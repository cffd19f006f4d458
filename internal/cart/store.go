package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRow mirrors one carts table row.
type CartRow struct {
	ID        string
	Currency  string
	ExpiresAt time.Time
}

// ItemRow mirrors one cart_items table row.
type ItemRow struct {
	ID        string
	CartID    string
	ProductID string
	Qty       int
	UnitPrice int64
	LineTotal int64
	TierLabel string
}

// Store runs cart queries against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateCart inserts an empty cart.
func (s *Store) CreateCart(ctx context.Context, currency string, expiresAt time.Time) (CartRow, error) {
	var c CartRow
	err := s.pool.QueryRow(ctx, `INSERT INTO carts (currency, expires_at) VALUES ($1, $2)
		RETURNING id, currency, expires_at`, currency, expiresAt).
		Scan(&c.ID, &c.Currency, &c.ExpiresAt)
	if err != nil {
		return CartRow{}, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

// GetCart fetches one unexpired cart. Returns pgx.ErrNoRows when absent or
// expired.
func (s *Store) GetCart(ctx context.Context, id string) (CartRow, error) {
	var c CartRow
	err := s.pool.QueryRow(ctx, `SELECT id, currency, expires_at FROM carts
		WHERE id = $1 AND expires_at > now()`, id).
		Scan(&c.ID, &c.Currency, &c.ExpiresAt)
	if err != nil {
		return CartRow{}, err
	}
	return c, nil
}

// TouchCart extends a cart's lifetime after a mutation.
func (s *Store) TouchCart(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, id, expiresAt)
	return err
}

// ListItems returns the cart's items in insertion order.
func (s *Store) ListItems(ctx context.Context, cartID string) ([]ItemRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, cart_id, product_id, qty, unit_price, line_total, tier_label
		FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	items := []ItemRow{}
	for rows.Next() {
		var it ItemRow
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.LineTotal, &it.TierLabel); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// FindItemByProduct fetches the cart's line for a product, if present.
func (s *Store) FindItemByProduct(ctx context.Context, cartID, productID string) (ItemRow, error) {
	var it ItemRow
	err := s.pool.QueryRow(ctx, `SELECT id, cart_id, product_id, qty, unit_price, line_total, tier_label
		FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.LineTotal, &it.TierLabel)
	if err != nil {
		return ItemRow{}, err
	}
	return it, nil
}

// GetItem fetches one cart item scoped to its cart.
func (s *Store) GetItem(ctx context.Context, cartID, itemID string) (ItemRow, error) {
	var it ItemRow
	err := s.pool.QueryRow(ctx, `SELECT id, cart_id, product_id, qty, unit_price, line_total, tier_label
		FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.LineTotal, &it.TierLabel)
	if err != nil {
		return ItemRow{}, err
	}
	return it, nil
}

// InsertItem adds a priced line to the cart.
func (s *Store) InsertItem(ctx context.Context, it ItemRow) (ItemRow, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO cart_items (cart_id, product_id, qty, unit_price, line_total, tier_label)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, it.CartID, it.ProductID, it.Qty, it.UnitPrice, it.LineTotal, it.TierLabel).
		Scan(&it.ID)
	if err != nil {
		return ItemRow{}, fmt.Errorf("insert cart item: %w", err)
	}
	return it, nil
}

// UpdateItem rewrites a line's quantity and recomputed prices.
func (s *Store) UpdateItem(ctx context.Context, it ItemRow) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cart_items SET qty = $2, unit_price = $3, line_total = $4, tier_label = $5
		WHERE id = $1`, it.ID, it.Qty, it.UnitPrice, it.LineTotal, it.TierLabel)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteItem removes a line from the cart.
func (s *Store) DeleteItem(ctx context.Context, cartID, itemID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
