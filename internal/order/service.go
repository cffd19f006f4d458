package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-streamshop/internal/cart"
	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/events"
	"github.com/noah-isme/backend-streamshop/internal/obs"
)

// ErrNotFound indicates the requested order could not be located.
var ErrNotFound = errors.New("order not found")

// ErrEmptyCart rejects checkout of a cart with no items.
var ErrEmptyCart = errors.New("cart is empty")

type storeProvider interface {
	CreateFromCart(ctx context.Context, o OrderRow, items []ItemRow, cartID string) (OrderRow, error)
	Get(ctx context.Context, id string) (OrderRow, []ItemRow, error)
	List(ctx context.Context, status string, limit, offset int) ([]OrderRow, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

type cartProvider interface {
	Totals(ctx context.Context, cartID string) (cart.Cart, error)
}

// Service owns checkout and the order lifecycle. Prices are snapshotted from
// the cart at checkout; later catalog price changes never touch an order.
type Service struct {
	Store  storeProvider
	Carts  cartProvider
	Events *events.Bus
}

// Input is the checkout request payload.
type Input struct {
	CartID string `json:"cart_id" validate:"required,uuid"`
	Email  string `json:"email" validate:"required,email"`
}

// Item is the public order line payload.
type Item struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id,omitempty"`
	Description  string `json:"description"`
	Qty          int    `json:"qty"`
	UnitPrice    int64  `json:"unit_price"`
	LineTotal    int64  `json:"line_total"`
	DisplayTotal string `json:"display_total"`
}

// Order is the public order payload.
type Order struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Status       Status    `json:"status"`
	Items        []Item    `json:"items,omitempty"`
	Subtotal     int64     `json:"subtotal"`
	Savings      int64     `json:"savings"`
	Total        int64     `json:"total"`
	DisplayTotal string    `json:"display_total"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
}

// Checkout snapshots the cart into a pending order.
func (s *Service) Checkout(ctx context.Context, in Input) (Order, error) {
	if s == nil || s.Store == nil || s.Carts == nil {
		return Order{}, errors.New("order service not configured")
	}
	c, err := s.Carts.Totals(ctx, in.CartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			recordCheckout("cart_not_found")
			return Order{}, ErrNotFound
		}
		recordCheckout("error")
		return Order{}, err
	}
	if len(c.Items) == 0 {
		recordCheckout("empty_cart")
		return Order{}, ErrEmptyCart
	}

	items := make([]ItemRow, 0, len(c.Items))
	for _, it := range c.Items {
		desc := it.Name
		if desc == "" {
			desc = it.ProductID
		}
		if it.TierLabel != "" {
			desc = fmt.Sprintf("%s (%s)", desc, it.TierLabel)
		}
		items = append(items, ItemRow{
			ProductID:   it.ProductID,
			Description: desc,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	row, err := s.Store.CreateFromCart(ctx, OrderRow{
		Email:    in.Email,
		Status:   StatusPending,
		Subtotal: c.Subtotal,
		Savings:  c.Savings,
		Total:    c.Total,
		Currency: c.Currency,
	}, items, c.ID)
	if err != nil {
		recordCheckout("error")
		return Order{}, err
	}
	recordCheckout("ok")
	out := toOrder(row, items)
	s.emit(ctx, events.TopicOrderCreated, out)
	return out, nil
}

// Get returns one order with items.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	row, items, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, mapNotFound(err)
	}
	return toOrder(row, items), nil
}

// List returns orders for the back office.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Order, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("order service not configured")
	}
	if status != "" && !ValidStatus(Status(status)) {
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrBadTransition)
	}
	rows, err := s.Store.List(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, toOrder(row, nil))
	}
	return out, nil
}

// Transition moves an order to a new lifecycle state, validating the edge
// before touching storage.
func (s *Service) Transition(ctx context.Context, id string, to Status) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	if !ValidStatus(to) {
		return Order{}, fmt.Errorf("unknown status %q: %w", to, ErrBadTransition)
	}
	row, _, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, mapNotFound(err)
	}
	if !CanTransition(row.Status, to) {
		return Order{}, fmt.Errorf("%s -> %s: %w", row.Status, to, ErrBadTransition)
	}
	if err := s.Store.UpdateStatus(ctx, id, row.Status, to); err != nil {
		return Order{}, mapNotFound(err)
	}
	row.Status = to
	out := toOrder(row, nil)
	if topic := topicFor(to); topic != "" {
		s.emit(ctx, topic, out)
	}
	return out, nil
}

// Cancel is the customer-facing path. Bare possession of the order id only
// cancels pending orders; anything already paid requires an admin transition.
func (s *Service) Cancel(ctx context.Context, id string) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	row, _, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, mapNotFound(err)
	}
	if row.Status != StatusPending {
		return Order{}, fmt.Errorf("%s -> %s: %w", row.Status, StatusCancelled, ErrBadTransition)
	}
	if err := s.Store.UpdateStatus(ctx, id, row.Status, StatusCancelled); err != nil {
		return Order{}, mapNotFound(err)
	}
	row.Status = StatusCancelled
	out := toOrder(row, nil)
	s.emit(ctx, events.TopicOrderCancelled, out)
	return out, nil
}

func topicFor(status Status) string {
	switch status {
	case StatusPaid:
		return events.TopicOrderPaid
	case StatusFulfilled:
		return events.TopicOrderFulfilled
	case StatusCancelled:
		return events.TopicOrderCancelled
	default:
		return ""
	}
}

// emit publishes the lifecycle event. Notification failures are logged by the
// bus consumers and never fail the order operation.
func (s *Service) emit(ctx context.Context, topic string, o Order) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, o.ID, map[string]string{
		"orderId": o.ID,
		"email":   o.Email,
		"status":  string(o.Status),
		"total":   o.DisplayTotal,
		"savings": common.FormatCents(o.Savings),
	})
}

func toOrder(row OrderRow, items []ItemRow) Order {
	o := Order{
		ID:           row.ID,
		Email:        row.Email,
		Status:       row.Status,
		Subtotal:     row.Subtotal,
		Savings:      row.Savings,
		Total:        row.Total,
		DisplayTotal: common.FormatCents(row.Total),
		Currency:     row.Currency,
		CreatedAt:    row.CreatedAt,
	}
	for _, it := range items {
		o.Items = append(o.Items, Item{
			ID:           it.ID,
			ProductID:    it.ProductID,
			Description:  it.Description,
			Qty:          it.Qty,
			UnitPrice:    it.UnitPrice,
			LineTotal:    it.LineTotal,
			DisplayTotal: common.FormatCents(it.LineTotal),
		})
	}
	return o
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func recordCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
