package common

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem deduplicates write requests carrying an Idempotency-Key header. The
// first request within the TTL wins; replays get 409.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// Middleware applies the idempotency check. Requests without the header pass
// straight through.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Idempotency-Key")
		if raw == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := "idem:" + Sha256Hex(raw)
		acquired, err := i.R.SetNX(r.Context(), key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !acquired {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// key must expire even if the handler panics
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
