package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/pricing"
)

type queryProvider interface {
	ListProducts(ctx context.Context, f ListFilter) ([]ProductRow, error)
	CountProducts(ctx context.Context, f ListFilter) (int64, error)
	GetProductBySlug(ctx context.Context, slug string) (ProductRow, error)
	ListPlans(ctx context.Context) ([]PlanRow, error)
}

// Service orchestrates catalog queries, DTO assembly, caching, and pricing.
type Service struct {
	queries      queryProvider
	cache        *Cache
	engine       *pricing.Engine
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	Engine       *pricing.Engine
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing. Price bounds are minor
// units; a negative value leaves the bound open.
type ListParams struct {
	Category string
	Query    string
	MinPrice int64
	MaxPrice int64
	Sort     string
	Page     int
	Limit    int
}

// Product is the public product payload.
type Product struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        int64  `json:"price"`
	DisplayPrice string `json:"display_price"`
	Currency     string `json:"currency"`
	ImageURL     string `json:"image_url,omitempty"`
	Category     string `json:"category,omitempty"`
}

// PlanDevicePrice is one device-count entry in the plan payload.
type PlanDevicePrice struct {
	Devices      int    `json:"devices"`
	Price        int64  `json:"price"`
	DisplayPrice string `json:"display_price"`
	ProductCode  string `json:"product_code"`
}

// Plan is the public subscription plan payload.
type Plan struct {
	ID             string            `json:"id"`
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	DurationMonths int               `json:"duration_months"`
	DevicePrices   []PlanDevicePrice `json:"device_prices"`
}

// ProductQuote is the quote payload for a product at a quantity.
type ProductQuote struct {
	ProductID    string `json:"product_id"`
	Slug         string `json:"slug"`
	Quantity     int    `json:"quantity"`
	BasePrice    int64  `json:"base_price"`
	UnitPrice    int64  `json:"unit_price"`
	TotalPrice   int64  `json:"total_price"`
	Savings      int64  `json:"savings"`
	TierLabel    string `json:"tier_label,omitempty"`
	DisplayTotal string `json:"display_total"`
	Currency     string `json:"currency"`
}

// PlanQuote is the fixed-price payload for a plan at a device count.
type PlanQuote struct {
	PlanSlug     string `json:"plan_slug"`
	Devices      int    `json:"devices"`
	Price        int64  `json:"price"`
	DisplayPrice string `json:"display_price"`
	ProductCode  string `json:"product_code"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = pricing.Default()
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		engine:       engine,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// Engine exposes the pricing engine for collaborators that price cart lines.
func (s *Service) Engine() *pricing.Engine {
	return s.engine
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:     s.defaultPage,
		Limit:    s.defaultLimit,
		MinPrice: -1,
		MaxPrice: -1,
	}
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("min_price")); v != "" {
		cents, err := common.ParseDollarsToCents(v)
		if err != nil || cents < 0 {
			return params, badRequest("min_price", "min_price must be a non-negative amount", err)
		}
		params.MinPrice = cents
	}
	if v := strings.TrimSpace(values.Get("max_price")); v != "" {
		cents, err := common.ParseDollarsToCents(v)
		if err != nil || cents < 0 {
			return params, badRequest("max_price", "max_price must be a non-negative amount", err)
		}
		params.MaxPrice = cents
	}
	if params.MinPrice >= 0 && params.MaxPrice >= 0 && params.MinPrice > params.MaxPrice {
		return params, badRequest("min_price", "min_price must not exceed max_price", nil)
	}
	switch v := strings.TrimSpace(values.Get("sort")); v {
	case "", "name", "price_asc", "price_desc", "newest":
		params.Sort = v
	default:
		return params, badRequest("sort", "sort must be one of name, price_asc, price_desc, newest", nil)
	}

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		if limit > s.maxLimit {
			limit = s.maxLimit
		}
		params.Limit = limit
	}
	return params, nil
}

// ListProducts returns filtered products with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key, shouldUseCache := s.listCacheKey(params)
	if shouldUseCache {
		var cached cachedList
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
		}
	}

	offset := (params.Page - 1) * params.Limit
	if offset < 0 {
		offset = 0
	}
	filter := ListFilter{
		Category: params.Category,
		Query:    params.Query,
		MinPrice: params.MinPrice,
		MaxPrice: params.MaxPrice,
		Sort:     params.Sort,
		Limit:    params.Limit,
		Offset:   offset,
	}
	total, err := s.queries.CountProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, err
	}
	rows, err := s.queries.ListProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, err
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, toProduct(row))
	}
	result := ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if shouldUseCache {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return result, nil
}

// GetProduct returns one product by slug.
func (s *Service) GetProduct(ctx context.Context, slug string) (Product, error) {
	row, err := s.getProductRow(ctx, slug)
	if err != nil {
		return Product{}, err
	}
	return toProduct(row), nil
}

// ListPlans returns active plans with their device price tables.
func (s *Service) ListPlans(ctx context.Context) ([]Plan, error) {
	const key = "catalog:plans"
	var cached []Plan
	ok, err := s.cache.GetJSON(ctx, key, &cached)
	if err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	plans := make([]Plan, 0, len(rows))
	for _, row := range rows {
		p := Plan{
			ID:             row.ID,
			Slug:           row.Slug,
			Name:           row.Name,
			DurationMonths: row.DurationMonths,
			DevicePrices:   make([]PlanDevicePrice, 0, len(row.DevicePrices)),
		}
		for _, dp := range row.DevicePrices {
			p.DevicePrices = append(p.DevicePrices, PlanDevicePrice{
				Devices:      dp.Devices,
				Price:        dp.Price,
				DisplayPrice: common.FormatCents(dp.Price),
				ProductCode:  dp.ProductCode,
			})
		}
		plans = append(plans, p)
	}
	_ = s.cache.SetJSON(ctx, key, plans)
	return plans, nil
}

// PlanMatrix assembles the validated device-price matrix from stored plans.
// An incomplete table surfaces as a configuration error here rather than a
// wrong price at lookup time.
func (s *Service) PlanMatrix(ctx context.Context) (*pricing.PlanMatrix, error) {
	rows, err := s.queries.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	plans := make([]pricing.PlanPricing, 0, len(rows))
	for _, row := range rows {
		p := pricing.PlanPricing{
			Duration: row.Slug,
			Devices:  make(map[int]pricing.DevicePrice, len(row.DevicePrices)),
		}
		for _, dp := range row.DevicePrices {
			p.Devices[dp.Devices] = pricing.DevicePrice{Price: dp.Price, ProductID: dp.ProductCode}
		}
		plans = append(plans, p)
	}
	matrix, err := pricing.NewPlanMatrix(plans)
	if err != nil {
		return nil, &common.AppError{
			Code:       "PLAN_MATRIX_INVALID",
			Message:    "plan pricing is misconfigured",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}
	return matrix, nil
}

// Quote prices qty units of the product identified by slug.
func (s *Service) Quote(ctx context.Context, slug string, qty int) (ProductQuote, error) {
	row, err := s.getProductRow(ctx, slug)
	if err != nil {
		return ProductQuote{}, err
	}
	q, err := s.engine.ComputeQuote(row.BasePrice, qty)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidQuantity) {
			return ProductQuote{}, &common.AppError{
				Code:       "INVALID_QUANTITY",
				Message:    "quantity must be a positive integer",
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
			}
		}
		return ProductQuote{}, fmt.Errorf("compute quote: %w", err)
	}
	return ProductQuote{
		ProductID:    row.ID,
		Slug:         row.Slug,
		Quantity:     qty,
		BasePrice:    row.BasePrice,
		UnitPrice:    q.UnitPrice,
		TotalPrice:   q.TotalPrice,
		Savings:      q.Savings,
		TierLabel:    q.TierLabel,
		DisplayTotal: common.FormatCents(q.TotalPrice),
		Currency:     row.Currency,
	}, nil
}

// PlanPrice looks up the fixed bundle price for a plan at a device count.
func (s *Service) PlanPrice(ctx context.Context, planSlug string, devices int) (PlanQuote, error) {
	matrix, err := s.PlanMatrix(ctx)
	if err != nil {
		return PlanQuote{}, err
	}
	dp, err := matrix.LookupDevicePrice(planSlug, devices)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrUnknownPlan):
			return PlanQuote{}, &common.AppError{
				Code:       "UNKNOWN_PLAN",
				Message:    "plan not found",
				HTTPStatus: http.StatusNotFound,
				Err:        err,
			}
		case errors.Is(err, pricing.ErrUnknownDeviceTier):
			return PlanQuote{}, &common.AppError{
				Code:       "UNKNOWN_DEVICE_TIER",
				Message:    "device count is not offered for this plan",
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
			}
		}
		return PlanQuote{}, err
	}
	return PlanQuote{
		PlanSlug:     planSlug,
		Devices:      devices,
		Price:        dp.Price,
		DisplayPrice: common.FormatCents(dp.Price),
		ProductCode:  dp.ProductID,
	}, nil
}

func (s *Service) getProductRow(ctx context.Context, slug string) (ProductRow, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductRow{}, badRequest("slug", "slug is required", nil)
	}
	cacheKey := detailCacheKey(slug)
	var cached ProductRow
	ok, err := s.cache.GetJSON(ctx, cacheKey, &cached)
	if err == nil && ok {
		return cached, nil
	}
	row, err := s.queries.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductRow{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductRow{}, fmt.Errorf("get product by slug: %w", err)
	}
	_ = s.cache.SetJSON(ctx, cacheKey, row)
	return row, nil
}

func toProduct(row ProductRow) Product {
	return Product{
		ID:           row.ID,
		Slug:         row.Slug,
		Name:         row.Name,
		Description:  row.Description,
		Price:        row.BasePrice,
		DisplayPrice: common.FormatCents(row.BasePrice),
		Currency:     row.Currency,
		ImageURL:     row.ImageURL,
		Category:     row.Category,
	}
}

type cachedList struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
}

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if params.Page != s.defaultPage || params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Category != "" || params.Query != "" || params.Sort != "" {
		return "", false
	}
	if params.MinPrice >= 0 || params.MaxPrice >= 0 {
		return "", false
	}
	return "catalog:products:list:default", true
}

func detailCacheKey(slug string) string {
	return "catalog:products:detail:" + slug
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
