package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postBody(t *testing.T, limit int64, body string, declared int64) (int, string) {
	t.Helper()
	var seen string
	handler := BodyLimit{Max: limit}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seen = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", strings.NewReader(body))
	if declared > 0 {
		req.ContentLength = declared
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Code, seen
}

func TestBodyLimitPassesSmallPayload(t *testing.T) {
	code, seen := postBody(t, 16, `{"qty":3}`, 0)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if seen != `{"qty":3}` {
		t.Fatalf("body mangled: %q", seen)
	}
}

func TestBodyLimitRejectsLongPayload(t *testing.T) {
	code, _ := postBody(t, 4, "0123456789", 0)
	if code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", code)
	}
}

func TestBodyLimitTrustsDeclaredLength(t *testing.T) {
	code, _ := postBody(t, 4, "ok", 9000)
	if code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", code)
	}
}
