package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// MsgThrottled is returned when a client exceeds its rate limit.
const MsgThrottled = "Request was throttled."

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. A non-positive limit disables it.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeAuthError(w, http.StatusTooManyRequests, MsgThrottled)
		}),
	)
}
