package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/capitalize-ai/roundtable/internal/ratelimit"
	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

// RateLimit creates the global throttle, keyed by user when authenticated
// and by client IP otherwise.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ClientKey(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimitRejections.WithLabelValues("global").Inc()
			writeRateLimited(w, windowLength)
		}),
	)
}

// SlidingWindow guards an expensive endpoint with limiter. Rejections carry
// the seconds until the oldest request in the window expires.
func SlidingWindow(limiter *ratelimit.SlidingWindow, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			now := time.Now()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			if !limiter.Allow(key, now) {
				metrics.RateLimitRejections.WithLabelValues(name).Inc()
				writeRateLimited(w, limiter.RetryAfter(key, now))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller for rate limiting.
func ClientKey(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": secs,
	})
}
