package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/soedash/internal/ratelimit"
)

// RateLimit returns middleware that rejects clients exceeding limiter with
// 429 Too Many Requests. Clients are keyed by ClientIP, so TrustedRealIP
// must run first.
func RateLimit(limiter *ratelimit.KeyedLimiter, retryAfter time.Duration) func(http.Handler) http.Handler {
	seconds := strconv.Itoa(max(1, int(retryAfter.Seconds())))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", seconds)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded","message":"Too many requests","action":"Please wait a moment before trying again","code":"RATE001"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
