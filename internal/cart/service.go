package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-streamshop/internal/catalog"
	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/pricing"
)

// ErrNotFound indicates the requested cart or item could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

type queryProvider interface {
	CreateCart(ctx context.Context, currency string, expiresAt time.Time) (CartRow, error)
	GetCart(ctx context.Context, id string) (CartRow, error)
	TouchCart(ctx context.Context, id string, expiresAt time.Time) error
	ListItems(ctx context.Context, cartID string) ([]ItemRow, error)
	FindItemByProduct(ctx context.Context, cartID, productID string) (ItemRow, error)
	GetItem(ctx context.Context, cartID, itemID string) (ItemRow, error)
	InsertItem(ctx context.Context, it ItemRow) (ItemRow, error)
	UpdateItem(ctx context.Context, it ItemRow) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
}

type productProvider interface {
	GetProductByID(ctx context.Context, id string) (catalog.ProductRow, error)
}

// Service encapsulates cart domain operations. Every line price is produced
// by the volume-discount engine from the product's current base price, so a
// quantity change always reprices the whole line.
type Service struct {
	Q        queryProvider
	Products productProvider
	Engine   *pricing.Engine
	Currency string
	TTL      time.Duration
	Now      func() time.Time
}

// Item is the public cart line payload.
type Item struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Name         string `json:"name,omitempty"`
	Qty          int    `json:"qty"`
	UnitPrice    int64  `json:"unit_price"`
	LineTotal    int64  `json:"line_total"`
	TierLabel    string `json:"tier_label,omitempty"`
	DisplayTotal string `json:"display_total"`
}

// Cart is the public cart payload with computed totals.
type Cart struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Items    []Item `json:"items"`
	Subtotal int64  `json:"subtotal"`
	Savings  int64  `json:"savings"`
	Total    int64  `json:"total"`
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) engine() *pricing.Engine {
	if s != nil && s.Engine != nil {
		return s.Engine
	}
	return pricing.Default()
}

func (s *Service) currency() string {
	if s != nil && s.Currency != "" {
		return s.Currency
	}
	return "USD"
}

// Create opens a fresh guest cart.
func (s *Service) Create(ctx context.Context) (Cart, error) {
	if s == nil || s.Q == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	row, err := s.Q.CreateCart(ctx, s.currency(), s.now().Add(s.ttl()))
	if err != nil {
		return Cart{}, err
	}
	return Cart{ID: row.ID, Currency: row.Currency, Items: []Item{}}, nil
}

// Get loads a cart with items and computed totals.
func (s *Service) Get(ctx context.Context, cartID string) (Cart, error) {
	if s == nil || s.Q == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	row, err := s.Q.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	return s.assemble(ctx, row)
}

// AddItem adds qty units of a product, merging with an existing line. The
// merged quantity is repriced as one line so the volume tier reflects the
// total units, not the increments.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int) (Cart, error) {
	if s == nil || s.Q == nil || s.Products == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	row, err := s.Q.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}

	existing, err := s.Q.FindItemByProduct(ctx, row.ID, productID)
	switch {
	case err == nil:
		return s.repriceItem(ctx, row, existing, existing.Qty+qty)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return Cart{}, err
	}

	product, err := s.Products.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, fmt.Errorf("unknown product: %w", ErrInvalidInput)
		}
		return Cart{}, err
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("product not available: %w", ErrInvalidInput)
	}
	quote, err := s.engine().ComputeQuote(product.BasePrice, qty)
	if err != nil {
		return Cart{}, fmt.Errorf("price cart line: %w", err)
	}
	if _, err := s.Q.InsertItem(ctx, ItemRow{
		CartID:    row.ID,
		ProductID: product.ID,
		Qty:       qty,
		UnitPrice: quote.UnitPrice,
		LineTotal: quote.TotalPrice,
		TierLabel: quote.TierLabel,
	}); err != nil {
		return Cart{}, err
	}
	_ = s.Q.TouchCart(ctx, row.ID, s.now().Add(s.ttl()))
	return s.assemble(ctx, row)
}

// UpdateItemQty changes a line's quantity and reprices it.
func (s *Service) UpdateItemQty(ctx context.Context, cartID, itemID string, qty int) (Cart, error) {
	if s == nil || s.Q == nil || s.Products == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	row, err := s.Q.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	item, err := s.Q.GetItem(ctx, row.ID, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	return s.repriceItem(ctx, row, item, qty)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (Cart, error) {
	if s == nil || s.Q == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	row, err := s.Q.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	if err := s.Q.DeleteItem(ctx, row.ID, itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	_ = s.Q.TouchCart(ctx, row.ID, s.now().Add(s.ttl()))
	return s.assemble(ctx, row)
}

// Totals recomputes the cart's aggregates against current product prices.
// Used by checkout to snapshot prices at order time.
func (s *Service) Totals(ctx context.Context, cartID string) (Cart, error) {
	return s.Get(ctx, cartID)
}

func (s *Service) repriceItem(ctx context.Context, row CartRow, item ItemRow, qty int) (Cart, error) {
	product, err := s.Products.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return Cart{}, err
	}
	quote, err := s.engine().ComputeQuote(product.BasePrice, qty)
	if err != nil {
		return Cart{}, fmt.Errorf("price cart line: %w", err)
	}
	item.Qty = qty
	item.UnitPrice = quote.UnitPrice
	item.LineTotal = quote.TotalPrice
	item.TierLabel = quote.TierLabel
	if err := s.Q.UpdateItem(ctx, item); err != nil {
		return Cart{}, err
	}
	_ = s.Q.TouchCart(ctx, row.ID, s.now().Add(s.ttl()))
	return s.assemble(ctx, row)
}

func (s *Service) assemble(ctx context.Context, row CartRow) (Cart, error) {
	items, err := s.Q.ListItems(ctx, row.ID)
	if err != nil {
		return Cart{}, err
	}
	cart := Cart{ID: row.ID, Currency: row.Currency, Items: make([]Item, 0, len(items))}
	for _, it := range items {
		cart.Subtotal += it.LineTotal
		var name string
		if s.Products != nil {
			if product, err := s.Products.GetProductByID(ctx, it.ProductID); err == nil {
				name = product.Name
				saved := product.BasePrice*int64(it.Qty) - it.LineTotal
				if saved > 0 {
					cart.Savings += saved
				}
			}
		}
		cart.Items = append(cart.Items, Item{
			ID:           it.ID,
			ProductID:    it.ProductID,
			Name:         name,
			Qty:          it.Qty,
			UnitPrice:    it.UnitPrice,
			LineTotal:    it.LineTotal,
			TierLabel:    it.TierLabel,
			DisplayTotal: common.FormatCents(it.LineTotal),
		})
	}
	cart.Total = cart.Subtotal
	return cart, nil
}
