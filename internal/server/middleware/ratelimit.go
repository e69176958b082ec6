package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitRuns limits execute-mode runs per token subject, falling back to
// the client IP for unauthenticated deployments. It must be used after
// Authenticate.
func RateLimitRuns(runsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		runsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p := GetPrincipal(r.Context()); p != nil {
				return "sub:" + p.Subject, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
