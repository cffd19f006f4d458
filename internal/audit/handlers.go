package audit

import (
	"net/http"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

const (
	listDefaultLimit = 50
	listMaxLimit     = 200
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Store Store
}

// List returns a paginated list of audit logs for administrators.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}

	q := r.URL.Query()
	limit := common.AtoiDefault(q.Get("limit"), listDefaultLimit)
	if limit <= 0 || limit > listMaxLimit {
		limit = listDefaultLimit
	}
	offset := max(common.AtoiDefault(q.Get("offset"), 0), 0)

	rows, err := h.Store.ListAuditLogs(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
