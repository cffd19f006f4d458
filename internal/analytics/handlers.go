package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// Handler exposes the page view ingest endpoint and admin dashboards.
type Handler struct {
	Svc *Service
}

type trackRequest struct {
	Path string `json:"path"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return false
	}
	return true
}

// Track handles POST /api/v1/track.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		// Fall back to the Referer so plain pixel-style calls still count.
		req.Path = r.Referer()
	}
	if err := h.Svc.Track(r.Context(), req.Path); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid path", nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Overview handles GET /api/v1/admin/analytics/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	from, to, err := h.parseRange(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	overview, err := h.Svc.OverviewRange(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": overview})
}

// parseRange resolves the reporting window. Explicit from/to RFC3339 bounds
// win; otherwise a trailing window of "days" ending now is used.
func (h *Handler) parseRange(r *http.Request) (from, to time.Time, err error) {
	query := r.URL.Query()
	fromStr, toStr := query.Get("from"), query.Get("to")

	if fromStr != "" && toStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, errors.New("invalid from date")
		}
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, errors.New("invalid to date")
		}
	} else {
		days := h.Svc.DefaultRange
		if days <= 0 {
			days = 30
		}
		if raw := query.Get("days"); raw != "" {
			if parsed := common.AtoiDefault(raw, days); parsed > 0 {
				days = parsed
			}
		}
		to = h.Svc.now()
		from = to.AddDate(0, 0, -days)
	}

	if !from.Before(to) {
		return from, to, errors.New("from must be before to")
	}
	return from, to, nil
}
