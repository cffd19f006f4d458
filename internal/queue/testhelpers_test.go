package queue_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/queue"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// stubStore is an in-memory queue.Store for worker and admin tests.
type stubStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]queue.DLQEntry
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[uuid.UUID]queue.DLQEntry)}
}

func (s *stubStore) InsertQueueDlq(_ context.Context, entry queue.DLQEntry) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries[entry.ID] = entry
	return entry.ID, nil
}

func (s *stubStore) DeleteQueueDlq(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *stubStore) GetQueueDlq(_ context.Context, id uuid.UUID) (queue.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return queue.DLQEntry{}, sql.ErrNoRows
	}
	return entry, nil
}

func (s *stubStore) ListQueueDlq(_ context.Context, kind string, limit, offset int) ([]queue.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []queue.DLQEntry
	for _, entry := range s.entries {
		if kind == "" || entry.Kind == kind {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit <= 0 {
		limit = len(matched)
	}
	if offset >= len(matched) {
		return []queue.DLQEntry{}, nil
	}
	end := min(offset+limit, len(matched))
	out := make([]queue.DLQEntry, end-offset)
	copy(out, matched[offset:end])
	return out, nil
}

func (s *stubStore) CountQueueDlq(_ context.Context, kind string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, entry := range s.entries {
		if kind == "" || entry.Kind == kind {
			total++
		}
	}
	return total, nil
}

func (s *stubStore) QueueDlqSizeByKind(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make(map[string]int64)
	for _, entry := range s.entries {
		sizes[entry.Kind]++
	}
	return sizes, nil
}

func (s *stubStore) snapshot() map[uuid.UUID]queue.DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]queue.DLQEntry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out
}
