package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter returns an in-memory limiter allowing limit requests per
// period and client.
func NewRateLimiter(limit int, period time.Duration) *limiter.Limiter {
	if period <= 0 {
		period = time.Minute
	}
	return limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: int64(limit)})
}

// RateLimit counts requests per client IP, as set by TrustedRealIP. Requests
// over the limit get a JSON 429 with Retry-After. A store failure lets the
// request through.
func RateLimit(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc, err := l.Get(r.Context(), clientKey(r))
			if err != nil {
				slog.Error("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

			if lc.Reached {
				retry := int(time.Until(time.Unix(lc.Reset, 0)).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				deny(w, http.StatusTooManyRequests, "HTTP429", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
