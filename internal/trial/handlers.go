package trial

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// Handler exposes the trial provisioning endpoint.
type Handler struct {
	Svc      *Service
	Limiter  *limiter.Limiter
	Validate *validator.Validate
}

type trialRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Provision handles POST /api/v1/trial.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "trial service not configured", nil)
		return
	}
	if h.Limiter != nil {
		lctx, err := h.Limiter.Get(r.Context(), clientIP(r))
		if err == nil {
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
			if lctx.Reached {
				common.JSONError(w, http.StatusTooManyRequests, "TRIAL_RATE_LIMITED", "trial limit reached, try again later", nil)
				return
			}
		}
	}

	var req trialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "a valid email is required", nil)
			return
		}
	}

	result, err := h.Svc.Provision(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnavailable):
			common.JSONError(w, http.StatusServiceUnavailable, "TRIAL_UNAVAILABLE", "trial provisioning temporarily unavailable", nil)
		case errors.Is(err, ErrUpstream):
			common.JSONError(w, http.StatusBadGateway, "TRIAL_UPSTREAM", "trial provisioning failed", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		}
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if colon := strings.LastIndex(host, ":"); colon >= 0 {
		return host[:colon]
	}
	return host
}
