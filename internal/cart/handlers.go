package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// Handler exposes guest cart endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,min=1"`
}

type updateItemRequest struct {
	Qty int `json:"qty" validate:"required,min=1"`
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cart})
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// AddItem handles POST /api/v1/carts/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), req.ProductID, req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// UpdateItem handles PATCH /api/v1/carts/{id}/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.UpdateItemQty(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// RemoveItem handles DELETE /api/v1/carts/{id}/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
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

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
