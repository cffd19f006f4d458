package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfRequest(token, cookie, authz string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	if token != "" {
		req.Header.Set(DefaultCSRFHeader, token)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCSRFHeader, Value: cookie})
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func csrfStatus(t *testing.T, req *http.Request) int {
	t.Helper()
	handler := CSRF{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestCSRFMatrix(t *testing.T) {
	cases := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"matching pair", csrfRequest("tok-1", "tok-1", ""), http.StatusOK},
		{"mismatch", csrfRequest("tok-1", "tok-2", ""), http.StatusForbidden},
		{"header only", csrfRequest("tok-1", "", ""), http.StatusForbidden},
		{"nothing", csrfRequest("", "", ""), http.StatusForbidden},
		{"bearer exempt", csrfRequest("", "", "Bearer abc.def"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := csrfStatus(t, tc.req); got != tc.want {
				t.Fatalf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCSRFGuardsCookieAuthenticatedWrites(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "ss_access", Value: "jwt"})
	if got := csrfStatus(t, req); got != http.StatusForbidden {
		t.Fatalf("cookie-only write = %d, want 403", got)
	}

	req = csrfRequest("tok-9", "tok-9", "")
	req.AddCookie(&http.Cookie{Name: "ss_access", Value: "jwt"})
	if got := csrfStatus(t, req); got != http.StatusOK {
		t.Fatalf("token pair with auth cookie = %d, want 200", got)
	}
}

func TestCSRFIgnoresReads(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	if got := csrfStatus(t, req); got != http.StatusOK {
		t.Fatalf("GET must bypass csrf, got %d", got)
	}
}
