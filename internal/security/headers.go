package security

import (
	"net/http"
	"strconv"
)

// Headers sets baseline hardening headers on every response.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

var baseHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
	"Permissions-Policy":     "geolocation=(), microphone=()",
}

// Middleware applies the configured headers. HSTS is only emitted on TLS
// requests so plain-HTTP health probes stay untouched.
func (h Headers) Middleware(next http.Handler) http.Handler {
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Enable {
			dst := w.Header()
			for name, value := range baseHeaders {
				dst.Set(name, value)
			}
			if hsts != "" && r.TLS != nil {
				dst.Set("Strict-Transport-Security", hsts)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}
