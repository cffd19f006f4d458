package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/pricing"
)

type adminProvider interface {
	CreateProduct(ctx context.Context, p ProductRow) (ProductRow, error)
	UpdateProductPrice(ctx context.Context, id string, basePrice int64) error
	UpsertPlanPrice(ctx context.Context, planID string, pr PlanPriceRow) error
	GetProductByID(ctx context.Context, id string) (ProductRow, error)
}

// AdminHandler exposes back-office catalog management endpoints.
type AdminHandler struct {
	Store    adminProvider
	Cache    *Cache
	Validate *validator.Validate
}

type createProductRequest struct {
	Slug        string `json:"slug" validate:"required,max=120"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Price       string `json:"price" validate:"required"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	Category    string `json:"category" validate:"max=80"`
}

type updatePriceRequest struct {
	Price string `json:"price" validate:"required"`
}

type upsertPlanPriceRequest struct {
	Price       string `json:"price" validate:"required"`
	ProductCode string `json:"product_code" validate:"required,max=120"`
}

// CreateProduct handles POST /api/v1/admin/products. Prices arrive as
// decimal dollar strings and are converted to cents exactly at this boundary.
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	cents, err := common.ParseDollarsToCents(req.Price)
	if err != nil || cents < 0 {
		common.JSONError(w, http.StatusBadRequest, "CURRENCY_UNIT_MISMATCH", "price must be a non-negative amount with at most two decimal places", nil)
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	row, err := h.Store.CreateProduct(r.Context(), ProductRow{
		Slug:        strings.TrimSpace(req.Slug),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		BasePrice:   cents,
		Currency:    currency,
		ImageURL:    req.ImageURL,
		Category:    strings.TrimSpace(req.Category),
		Active:      true,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "create product failed", nil)
		return
	}
	h.invalidate(r.Context(), row.Slug)
	common.JSON(w, http.StatusCreated, map[string]any{"data": toProduct(row)})
}

// UpdateProductPrice handles PATCH /api/v1/admin/products/{id}/price.
func (h *AdminHandler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updatePriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	cents, err := common.ParseDollarsToCents(req.Price)
	if err != nil || cents < 0 {
		common.JSONError(w, http.StatusBadRequest, "CURRENCY_UNIT_MISMATCH", "price must be a non-negative amount with at most two decimal places", nil)
		return
	}
	if err := h.Store.UpdateProductPrice(r.Context(), id, cents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "update price failed", nil)
		return
	}
	if row, err := h.Store.GetProductByID(r.Context(), id); err == nil {
		h.invalidate(r.Context(), row.Slug)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "price": cents}})
}

// UpsertPlanPrice handles PUT /api/v1/admin/plans/{id}/prices/{devices}.
func (h *AdminHandler) UpsertPlanPrice(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	devices, err := strconv.Atoi(chi.URLParam(r, "devices"))
	if err != nil || devices < pricing.MinDevices || devices > pricing.MaxDevices {
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_DEVICE_TIER", "devices must be between 1 and 5", nil)
		return
	}
	var req upsertPlanPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	cents, err := common.ParseDollarsToCents(req.Price)
	if err != nil || cents < 0 {
		common.JSONError(w, http.StatusBadRequest, "CURRENCY_UNIT_MISMATCH", "price must be a non-negative amount with at most two decimal places", nil)
		return
	}
	err = h.Store.UpsertPlanPrice(r.Context(), planID, PlanPriceRow{
		Devices:     devices,
		Price:       cents,
		ProductCode: strings.TrimSpace(req.ProductCode),
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "upsert plan price failed", nil)
		return
	}
	_ = h.Cache.Delete(r.Context(), "catalog:plans")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"plan_id": planID, "devices": devices, "price": cents}})
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return false
		}
	}
	return true
}

func (h *AdminHandler) invalidate(ctx context.Context, slug string) {
	_ = h.Cache.Delete(ctx, "catalog:products:list:default", detailCacheKey(slug))
}
