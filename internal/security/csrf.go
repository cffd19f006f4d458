package security

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// DefaultCSRFHeader is the header and cookie name used when none is set.
const DefaultCSRFHeader = "X-CSRF-Token"

// CSRF implements double-submit protection for cookie-authenticated writes.
// Bearer-token requests are exempt: the token itself is not sent by browsers.
type CSRF struct {
	Header string
}

func (c CSRF) headerName() string {
	if name := strings.TrimSpace(c.Header); name != "" {
		return name
	}
	return DefaultCSRFHeader
}

// Middleware rejects mutating requests whose CSRF header does not match the
// CSRF cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	name := c.headerName()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || bearerRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get(name))
		if header == "" {
			http.Error(w, "missing csrf token", http.StatusForbidden)
			return
		}
		cookie, err := r.Cookie(name)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			http.Error(w, "missing csrf cookie", http.StatusForbidden)
			return
		}
		if !tokensEqual(header, cookie.Value) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func bearerRequest(r *http.Request) bool {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.HasPrefix(strings.ToLower(auth), "bearer ")
}

func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
