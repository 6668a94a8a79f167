package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/service-desk-api/pkg/circuitbreaker"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(RateLimiterConfig{RequestsPerMinute: 2}, logger.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/queue", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:4000").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:4001").Code)

	rec := call("10.0.0.1:4002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, call("10.0.0.2:4000").Code)
}

func TestGracefulDegradation(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "http",
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	gd := NewGracefulDegradationWith(breaker, logger.NewNop())

	status := http.StatusInternalServerError
	h := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	call := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/orders/queue"))
	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/orders/queue"))
	assert.Equal(t, http.StatusServiceUnavailable, call("/api/v1/orders/queue"))
	assert.Equal(t, "open", gd.GetMetrics()["state"])

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, call("/api/v1/health"), "health bypasses the breaker")
	assert.Equal(t, http.StatusOK, call("/api/v1/admin/circuit-breaker"))

	gd.Reset()
	assert.Equal(t, http.StatusOK, call("/api/v1/orders/queue"))
}

func TestGracefulDegradationClientErrorsCloseHalfOpenBreaker(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "http",
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	})
	gd := NewGracefulDegradationWith(breaker, logger.NewNop())

	status := http.StatusInternalServerError
	h := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	call := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/so-1", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusInternalServerError, call())
	assert.Equal(t, "open", gd.GetMetrics()["state"])

	time.Sleep(20 * time.Millisecond)

	status = http.StatusNotFound
	assert.Equal(t, http.StatusNotFound, call())
	assert.Equal(t, http.StatusNotFound, call())
	assert.Equal(t, "closed", gd.GetMetrics()["state"])

	status = http.StatusOK
	for range 3 {
		assert.Equal(t, http.StatusOK, call())
	}
}
