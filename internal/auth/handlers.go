package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// Handler exposes HTTP handlers for authentication and account endpoints.
// Tokens travel both in the JSON body and in HttpOnly cookies so browser and
// non-browser clients can use the same endpoints.
type Handler struct {
	Service           *Service
	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return false
	}
	return true
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return credentialsRequest{}, false
	}
	return req, true
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.Service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": user})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setAuthCookies(w, result)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"user":                    result.User,
			"access_token":            result.AccessToken,
			"access_token_expires_at": result.AccessExpiry,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	result, err := h.Service.Refresh(r.Context(), h.refreshTokenFromRequest(r))
	if err != nil {
		h.clearAuthCookies(w)
		h.writeError(w, err)
		return
	}
	h.setAuthCookies(w, LoginResult{
		AccessToken:   result.AccessToken,
		AccessExpiry:  result.AccessExpiry,
		RefreshToken:  result.RefreshToken,
		RefreshExpiry: result.RefreshExpiry,
	})
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"access_token":            result.AccessToken,
			"access_token_expires_at": result.AccessExpiry,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. Clears cookies even when no
// session was found so stale clients always end up signed out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if refreshToken := h.refreshTokenFromRequest(r); refreshToken != "" {
		_ = h.Service.Logout(r.Context(), refreshToken)
	}
	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": user})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
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
	common.JSONError(w, status, code, message, appErr.Details)
}

func (h *Handler) writeCookie(w http.ResponseWriter, name, value string, expires time.Time, maxAge int) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, result LoginResult) {
	h.writeCookie(w, h.AccessCookieName, result.AccessToken, result.AccessExpiry, 0)
	h.writeCookie(w, h.RefreshCookieName, result.RefreshToken, result.RefreshExpiry, 0)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	h.writeCookie(w, h.AccessCookieName, "", time.Time{}, -1)
	h.writeCookie(w, h.RefreshCookieName, "", time.Time{}, -1)
}

// refreshTokenFromRequest prefers the refresh cookie and falls back to a
// JSON body for API clients that do not hold cookies.
func (h *Handler) refreshTokenFromRequest(r *http.Request) string {
	if h.RefreshCookieName != "" {
		if cookie, err := r.Cookie(h.RefreshCookieName); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return strings.TrimSpace(body.RefreshToken)
	}
	return ""
}
