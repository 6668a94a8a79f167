package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/service-desk-api/pkg/circuitbreaker"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the API keeps
// answering with server errors
type GracefulDegradation struct {
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

// NewGracefulDegradation creates the middleware with its own breaker
func NewGracefulDegradation(logger logger.Logger) *GracefulDegradation {
	return NewGracefulDegradationWith(circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "http",
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	}), logger)
}

// NewGracefulDegradationWith wraps an existing breaker
func NewGracefulDegradationWith(breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) *GracefulDegradation {
	return &GracefulDegradation{
		breaker: breaker,
		logger:  logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isEssentialEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())

			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "Service is temporarily unavailable. Please try again later.")
			return
		}

		sw := &statusCodeWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		// client errors mean the API is answering; they must also release
		// a half-open trial slot
		if sw.statusCode >= http.StatusInternalServerError {
			gd.breaker.Failure()
		} else {
			gd.breaker.Success()
		}
	})
}

// Health and admin endpoints stay reachable so operators can inspect and
// reset the breaker.
func isEssentialEndpoint(path string) bool {
	return strings.HasPrefix(path, "/api/v1/health") ||
		strings.HasPrefix(path, "/api/v1/admin")
}

type statusCodeWriter struct {
	http.ResponseWriter
	statusCode int
}

func (scw *statusCodeWriter) WriteHeader(code int) {
	scw.statusCode = code
	scw.ResponseWriter.WriteHeader(code)
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset resets the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}

// writeError answers in the API's {success, error} envelope
func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
