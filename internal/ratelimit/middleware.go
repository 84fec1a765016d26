package ratelimit

import (
	"encoding/json"
	"net/http"
)

// Middleware returns an HTTP middleware that throttles requests per client
// IP using the provided Limiter. It is applied to the login route to slow
// down credential guessing; the X-Forwarded-For header wins over the remote
// address when a proxy sits in front.
//
// When the limit is exceeded the middleware responds with HTTP 429 and a
// JSON error body.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Forwarded-For")
			if key == "" {
				key = r.RemoteAddr
			}

			if !limiter.Allow(key) {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Too many attempts. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
