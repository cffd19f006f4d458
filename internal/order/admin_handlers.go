package order

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// AdminHandler exposes back-office order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// List handles GET /api/v1/admin/orders with optional status filter.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := common.AtoiDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	orders, err := h.Svc.List(r.Context(), status, limit, offset)
	if err != nil {
		(&Handler{}).writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Get handles GET /api/v1/admin/orders/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		(&Handler{}).writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// PatchStatus handles PATCH /api/v1/admin/orders/{id}/status.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	o, err := h.Svc.Transition(r.Context(), chi.URLParam(r, "id"), Status(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		(&Handler{}).writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}
