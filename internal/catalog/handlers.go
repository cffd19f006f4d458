package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/obs"
)

// Handler exposes public catalog and quoting endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products with filters and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// ProductDetail handles GET /api/v1/products/{slug}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	slug := chi.URLParam(r, "slug")
	product, err := h.service.GetProduct(r.Context(), slug)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// ProductQuote handles GET /api/v1/products/{slug}/quote?qty=N.
func (h *Handler) ProductQuote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	slug := chi.URLParam(r, "slug")
	qty, err := parsePositiveInt(r.URL.Query().Get("qty"))
	if err != nil {
		recordQuote("product", "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", "qty must be a positive integer", nil)
		return
	}
	quote, err := h.service.Quote(r.Context(), slug, qty)
	if err != nil {
		recordQuote("product", "error")
		h.writeError(w, err)
		return
	}
	recordQuote("product", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// Plans handles GET /api/v1/plans.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": plans})
}

// PlanPrice handles GET /api/v1/plans/{slug}/price?devices=N.
func (h *Handler) PlanPrice(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	slug := chi.URLParam(r, "slug")
	devices, err := parsePositiveInt(r.URL.Query().Get("devices"))
	if err != nil {
		recordQuote("plan", "invalid")
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_DEVICE_TIER", "devices must be a positive integer", nil)
		return
	}
	quote, err := h.service.PlanPrice(r.Context(), slug, devices)
	if err != nil {
		recordQuote("plan", "error")
		h.writeError(w, err)
		return
	}
	recordQuote("plan", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func parsePositiveInt(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, errors.New("must be positive")
	}
	return v, nil
}

func recordQuote(source, result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(source, result).Inc()
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		var details any
		if appErr.Details != nil {
			details = appErr.Details
		}
		common.JSONError(w, status, code, message, details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
