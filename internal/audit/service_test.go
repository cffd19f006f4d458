package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/obs"
)

type captureStore struct {
	lastInsert Entry
	called     bool
}

func (s *captureStore) InsertAuditLog(_ context.Context, entry Entry) (string, error) {
	s.called = true
	s.lastInsert = entry
	return uuid.NewString(), nil
}

func (s *captureStore) ListAuditLogs(context.Context, int, int) ([]Entry, error) {
	return nil, nil
}

func TestServiceRecord(t *testing.T) {
	store := &captureStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}
	userID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPost, "https://api.test/api/v1/admin/products?active=true", nil)
	req.Header.Set("User-Agent", "tester")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithUserID(req.Context(), userID)
	ctx = obs.WithRoutePattern(ctx, "/api/v1/admin/products")
	req = req.WithContext(ctx)

	err := svc.Record(req.Context(), Actor{Kind: ActorKindUser, UserID: &userID}, "", "", "", req, http.StatusCreated, nil)
	require.NoError(t, err)
	require.True(t, store.called)

	entry := store.lastInsert
	require.Equal(t, string(ActorKindUser), entry.ActorKind)
	require.NotNil(t, entry.ActorUserID)
	require.Equal(t, userID, *entry.ActorUserID)
	require.Equal(t, "POST /api/v1/admin/products", entry.Action)
	require.Equal(t, "admin.products", entry.ResourceType)
	require.NotNil(t, entry.IP)
	require.Equal(t, "10.0.0.2", *entry.IP)
	require.NotNil(t, entry.RequestID)
	require.Equal(t, "req-123", *entry.RequestID)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	require.Equal(t, "active=true", meta["query"])
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &captureStore{}
	svc := Service{Store: store, Enabled: false}
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	require.NoError(t, svc.Record(req.Context(), Actor{}, "", "", "", req, http.StatusOK, nil))
	require.False(t, store.called)
}

func TestResourceLabelFallbacks(t *testing.T) {
	require.Equal(t, "orders", resourceLabel("orders", "/api/v1/cart"))
	require.Equal(t, "admin.queue.dlq", resourceLabel("", "/api/v1/admin/queue/dlq"))
	require.Equal(t, "healthz", resourceLabel("", "/healthz"))
	require.Equal(t, "unknown", resourceLabel("", ""))
}
