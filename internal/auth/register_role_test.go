package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
)

func TestRegisterAssignsCustomerRole(t *testing.T) {
	store := newFakeStore()
	svc, err := NewService(Config{Queries: store, Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	user, err := svc.Register(t.Context(), "New@Example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if len(user.Roles) != 1 || user.Roles[0] != RoleCustomer {
		t.Fatalf("expected customer role, got %v", user.Roles)
	}

	if _, err := svc.Register(t.Context(), "new@example.com", "password123"); err == nil {
		t.Fatal("expected duplicate email rejection")
	}

	if _, err := svc.Register(t.Context(), "short@example.com", "short"); err == nil {
		t.Fatal("expected short password rejection")
	}
}

func TestRequireRole(t *testing.T) {
	store := newFakeStore()
	hash, err := argon2id.CreateHash("password123", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := store.addUser("admin@example.com", hash, []string{RoleCustomer, RoleAdmin})
	customer := store.addUser("customer@example.com", hash, []string{RoleCustomer})

	svc, err := NewService(Config{Queries: store, Secret: "test-secret", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	mw := Middleware{Service: svc}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := mw.RequireRole(RoleAdmin)(next)

	request := func(userID string) int {
		token, _, err := svc.signAccessToken(userID)
		if err != nil {
			t.Fatalf("sign access token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request(admin.ID); code != http.StatusOK {
		t.Fatalf("expected admin allowed, got %d", code)
	}
	if code := request(customer.ID); code != http.StatusForbidden {
		t.Fatalf("expected customer forbidden, got %d", code)
	}

	// No token at all.
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without token, got %d", rec.Code)
	}
}
