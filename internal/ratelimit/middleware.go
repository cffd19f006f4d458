package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Config derives the limit key (typically client IP) and the thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler wraps routes with the sliding window limiter. Limiter errors fail
// open: an unreachable redis must not take quote endpoints down with it.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// Middleware enforces the limit and exposes X-RateLimit-* headers.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		writeLimitHeaders(w, h.Config.Max, remaining, resetAt)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(resetAt)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeLimitHeaders(w http.ResponseWriter, max, remaining int, resetAt time.Time) {
	if max < 0 {
		max = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(max))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// retryAfterSeconds rounds the remaining window up to whole seconds. A
// blocked response always advertises at least one second so clients never
// retry immediately.
func retryAfterSeconds(resetAt time.Time) int {
	remaining := time.Until(resetAt)
	secs := int((remaining + time.Second - 1) / time.Second)
	return max(secs, 1)
}
