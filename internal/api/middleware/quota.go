package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// QuotaCounter tracks a per-user daily allowance. Reserve must take a unit
// atomically; Release gives it back.
type QuotaCounter interface {
	Limit() int
	Reserve(ctx context.Context, userID string) (allowed bool, remaining int, err error)
	Release(ctx context.Context, userID string) error
}

// Quota returns middleware that enforces the daily analysis allowance. It
// must run after Auth. A unit is reserved before the handler runs and
// released again when the response is an error, so only successful
// responses consume quota. Exhausted users get 429. X-RateLimit-Limit and
// X-RateLimit-Remaining are set on every response.
func Quota(q QuotaCounter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if userID == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			allowed, remaining, err := q.Reserve(r.Context(), userID)
			if err != nil {
				logger.Error("reserving quota", slog.String("user_id", userID), slog.Any("error", err))
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}

			limit := strconv.Itoa(q.Limit())
			w.Header().Set("X-RateLimit-Limit", limit)

			if !allowed {
				logger.Warn("rate limit exceeded", slog.String("user_id", userID), slog.String("path", r.URL.Path))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(secondsUntilMidnightUTC(time.Now())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "daily image analysis limit exceeded",
					"limit":      q.Limit(),
					"remaining":  0,
					"reset_info": "Limit resets at midnight UTC",
				})
				return
			}

			qw := &quotaWriter{ResponseWriter: w, remaining: remaining}
			next.ServeHTTP(qw, r)

			if qw.status >= http.StatusBadRequest {
				// The request may already be cancelled; the unit must still come back.
				if err := q.Release(context.WithoutCancel(r.Context()), userID); err != nil {
					logger.Error("releasing quota", slog.String("user_id", userID), slog.Any("error", err))
				}
			}
		})
	}
}

// quotaWriter sets X-RateLimit-Remaining once the status is known: an
// error response hands its reserved unit back.
type quotaWriter struct {
	http.ResponseWriter
	remaining int
	status    int
}

func (w *quotaWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	rem := w.remaining
	if code >= http.StatusBadRequest {
		rem++
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rem))
	w.ResponseWriter.WriteHeader(code)
}

func (w *quotaWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func secondsUntilMidnightUTC(now time.Time) int {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int(next.Sub(now).Seconds())
}
