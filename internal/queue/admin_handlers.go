package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

// AdminHandler exposes queue management endpoints for DLQ operations and metrics.
type AdminHandler struct {
	Store             Store
	Queue             Enqueuer
	PageSize          int
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

const defaultAdminPageSize = 50

func adminError(w http.ResponseWriter, status int, code, msg string) {
	common.JSONError(w, status, code, msg, nil)
}

// normalizeKind trims and sanitizes a caller-supplied kind filter. An empty
// result means "all kinds".
func normalizeKind(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return ""
	}
	if sanitized := sanitizeKind(kind); sanitized != "" {
		return sanitized
	}
	return kind
}

// ListDLQ returns DLQ entries filtered by kind with pagination.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", "queue store unavailable")
		return
	}
	ctx := r.Context()
	kind := normalizeKind(r.URL.Query().Get("kind"))
	limit, offset := parsePagination(r, h.pageSize())

	entries, err := h.Store.ListQueueDlq(ctx, kind, limit, offset)
	if err != nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	total, err := h.Store.CountQueueDlq(ctx, kind)
	if err != nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	items := make([]dlqItem, 0, len(entries))
	for _, entry := range entries {
		msg, err := decodeMessage(string(entry.Payload))
		if err != nil {
			// Undecodable payloads stay in the table but are not listed.
			continue
		}
		items = append(items, dlqItem{
			ID:             entry.ID,
			Kind:           entry.Kind,
			IdempotencyKey: entry.IdempotencyKey,
			Attempts:       int32(entry.Attempts),
			LastError:      entry.LastError,
			CreatedAt:      entry.CreatedAt,
			Message:        msg,
		})
	}

	resp := map[string]any{
		"data":  items,
		"total": total,
	}
	if kind != "" {
		resp["kind"] = kind
	}
	common.JSON(w, http.StatusOK, resp)
}

// ReplayDLQ re-enqueues DLQ entries either by ID list or batch by kind.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil || h.Queue.R == nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable")
		return
	}
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		adminError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	ids := uniqueStrings(req.IDs)
	kind := normalizeKind(req.Kind)
	if len(ids) == 0 && kind == "" {
		adminError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or kind required")
		return
	}

	ctx := r.Context()
	var replayed []uuid.UUID
	failed := map[string]string{}

	if len(ids) > 0 {
		replayed = h.replayByID(ctx, ids, failed)
	} else {
		limit := req.Limit
		if limit <= 0 {
			limit = h.pageSize()
		}
		entries, err := h.Store.ListQueueDlq(ctx, kind, limit, 0)
		if err != nil {
			adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		replayed = h.replayEntries(ctx, entries, failed)
	}

	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) replayByID(ctx context.Context, ids []string, failed map[string]string) []uuid.UUID {
	replayed := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			failed[raw] = "invalid uuid"
			continue
		}
		entry, err := h.Store.GetQueueDlq(ctx, id)
		if err != nil {
			failed[raw] = err.Error()
			continue
		}
		if err := h.requeueEntry(ctx, entry); err != nil {
			failed[id.String()] = err.Error()
			continue
		}
		replayed = append(replayed, id)
	}
	return replayed
}

func (h *AdminHandler) replayEntries(ctx context.Context, entries []DLQEntry, failed map[string]string) []uuid.UUID {
	replayed := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		if err := h.requeueEntry(ctx, entry); err != nil {
			failed[entry.ID.String()] = err.Error()
			continue
		}
		replayed = append(replayed, entry.ID)
	}
	return replayed
}

// Stats returns queue depth, processing and DLQ size for a given kind.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Queue.R == nil || h.Store == nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable")
		return
	}
	kind := normalizeKind(r.URL.Query().Get("kind"))
	if kind == "" {
		adminError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required")
		return
	}

	ctx := r.Context()
	queueKey := h.Queue.queueKey(kind)
	processingKey := Worker{R: h.Queue.R, Prefix: h.Queue.Prefix}.processingKey(kind)

	ready, err := h.zcard(ctx, queueKey)
	if err != nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	inflight, err := h.zcard(ctx, processingKey)
	if err != nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	dlq, err := h.Store.CountQueueDlq(ctx, kind)
	if err != nil {
		adminError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	h.updateDepthMetric(ctx, kind)
	h.updateDLQMetric(ctx, kind)

	common.JSON(w, http.StatusOK, map[string]any{
		"kind":               kind,
		"ready":              ready,
		"processing":         inflight,
		"dlq":                dlq,
		"oldest_lag_ms":      h.oldestLagMillis(ctx, queueKey),
		"visibility_timeout": h.visibility().Seconds(),
	})
}

func (h *AdminHandler) zcard(ctx context.Context, key string) (int64, error) {
	n, err := h.Queue.R.ZCard(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

// oldestLagMillis reports how long the head of the ready queue has been due.
// Scores are ready-at timestamps in nanoseconds.
func (h *AdminHandler) oldestLagMillis(ctx context.Context, queueKey string) int64 {
	oldest, err := h.Queue.R.ZRangeWithScores(ctx, queueKey, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return 0
	}
	readyAt := time.Unix(0, int64(oldest[0].Score))
	if readyAt.After(time.Now()) {
		return 0
	}
	return time.Since(readyAt).Milliseconds()
}

func (h *AdminHandler) visibility() time.Duration {
	if h.VisibilityTimeout > 0 {
		return h.VisibilityTimeout
	}
	return 60 * time.Second
}

func (h *AdminHandler) requeueEntry(ctx context.Context, entry DLQEntry) error {
	msg, err := decodeMessage(string(entry.Payload))
	if err != nil {
		return err
	}
	attempt := msg.Attempt
	if attempt > 0 {
		attempt--
	}
	task := Task{
		Kind:           msg.Kind,
		Payload:        msg.Payload,
		IdempotencyKey: msg.Key,
		MaxAttempts:    msg.MaxAttempts,
		Attempt:        attempt,
	}
	if err := h.Queue.Enqueue(ctx, task); err != nil {
		return err
	}
	if err := h.Store.DeleteQueueDlq(ctx, entry.ID); err != nil {
		return err
	}
	h.updateDLQMetric(ctx, msg.Kind)
	h.updateDepthMetric(ctx, msg.Kind)
	return nil
}

func (h *AdminHandler) updateDLQMetric(ctx context.Context, kind string) {
	if QueueDLQSize == nil || h.Store == nil {
		return
	}
	count, err := h.Store.CountQueueDlq(ctx, kind)
	if err != nil {
		return
	}
	QueueDLQSize.WithLabelValues(queueLabel(kind)).Set(float64(count))
}

func (h *AdminHandler) updateDepthMetric(ctx context.Context, kind string) {
	if QueueDepth == nil || h.Queue.R == nil {
		return
	}
	depth, err := h.Queue.R.ZCard(ctx, h.Queue.queueKey(kind)).Result()
	if err != nil {
		return
	}
	QueueDepth.WithLabelValues(queueLabel(kind)).Set(float64(depth))
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize > 0 {
		return h.PageSize
	}
	return defaultAdminPageSize
}

func parsePagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if limit <= 0 {
		limit = defaultAdminPageSize
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type dlqItem struct {
	ID             uuid.UUID   `json:"id"`
	Kind           string      `json:"kind"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Attempts       int32       `json:"attempts"`
	LastError      *string     `json:"lastError,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	Message        taskMessage `json:"message"`
}

type replayRequest struct {
	IDs   []string `json:"ids"`
	Kind  string   `json:"kind"`
	Limit int      `json:"limit"`
}
