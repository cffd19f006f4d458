package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// Handler exposes customer-facing checkout and order endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	// PaymentInstructions is returned with every new order. Payment itself
	// is collected out of band.
	PaymentInstructions string
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
	}
	o, err := h.Svc.Checkout(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := map[string]any{"data": o}
	if h.PaymentInstructions != "" {
		payload["payment_instructions"] = h.PaymentInstructions
	}
	common.JSON(w, http.StatusCreated, payload)
}

// Cancel handles POST /api/v1/orders/{id}/cancel. Only pending orders can be
// cancelled by the customer; the order id acts as the capability token for
// guest checkouts.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, "EMPTY_CART", "cart has no items", nil)
	case errors.Is(err, ErrBadTransition):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
