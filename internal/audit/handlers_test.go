package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type listStore struct {
	captureStore
	receivedLimit  int
	receivedOffset int
}

func (l *listStore) ListAuditLogs(_ context.Context, limit, offset int) ([]Entry, error) {
	l.receivedLimit = limit
	l.receivedOffset = offset
	return []Entry{{Action: "TEST", Method: "GET"}}, nil
}

func TestHandlerList(t *testing.T) {
	store := &listStore{}
	h := Handler{Store: store}

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/audit?limit=25&offset=10", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 25, store.receivedLimit)
	require.Equal(t, 10, store.receivedOffset)

	var payload struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
}

func TestHandlerListClampsLimit(t *testing.T) {
	store := &listStore{}
	h := Handler{Store: store}

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/audit?limit=9999&offset=-3", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, listDefaultLimit, store.receivedLimit)
	require.Zero(t, store.receivedOffset)
}
