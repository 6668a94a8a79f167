package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// RateLimiterConfig configures the per-client rate limiter
type RateLimiterConfig struct {
	RequestsPerMinute int
	// TrustForwardedFor keys clients by X-Forwarded-For / X-Real-IP; only
	// enable it behind a proxy that sets those headers.
	TrustForwardedFor bool
}

// RateLimit limits each client IP to cfg.RequestsPerMinute requests in a
// sliding one-minute window. Rejected requests get a 429 JSON envelope.
func RateLimit(cfg RateLimiterConfig, log logger.Logger) func(http.Handler) http.Handler {
	keyFunc := httprate.KeyByIP
	if cfg.TrustForwardedFor {
		keyFunc = httprate.KeyByRealIP
	}

	return httprate.Limit(cfg.RequestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}),
	)
}
