package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func runHeaders(t *testing.T, h Headers, overTLS bool) http.Header {
	t.Helper()
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "http://shop.example/api/v1/products", nil)
	if overTLS {
		req.TLS = &tls.ConnectionState{}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersApplied(t *testing.T) {
	got := runHeaders(t, Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}, true)

	if got.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got.Get("X-Content-Type-Options"))
	}
	if got.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got.Get("X-Frame-Options"))
	}
	hsts := got.Get("Strict-Transport-Security")
	if hsts != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security = %q", hsts)
	}
}

func TestHeadersSkipHSTSWithoutTLS(t *testing.T) {
	got := runHeaders(t, Headers{Enable: true, EnableHSTS: true}, false)
	if got.Get("Strict-Transport-Security") != "" {
		t.Fatal("hsts must not be set on plain http")
	}
	if got.Get("Referrer-Policy") == "" {
		t.Fatal("expected base headers on plain http")
	}
}

func TestHeadersDisabled(t *testing.T) {
	got := runHeaders(t, Headers{}, true)
	if got.Get("X-Content-Type-Options") != "" {
		t.Fatal("headers must be absent when disabled")
	}
}
