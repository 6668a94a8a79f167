package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/service-desk-api/internal/config"
	"github.com/vaidashi/service-desk-api/internal/outbox"
	"github.com/vaidashi/service-desk-api/internal/service"
	"github.com/vaidashi/service-desk-api/pkg/circuitbreaker"
	"github.com/vaidashi/service-desk-api/pkg/logger"
	"github.com/vaidashi/service-desk-api/pkg/middleware"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components the HTTP layer drives
type Dependencies struct {
	Orders      *service.OrderService
	DeadLetters outbox.DeadLetterRepository
	// Breakers guarding outbound dependencies, shown and reset by the admin API
	Breakers []*circuitbreaker.CircuitBreaker
	// Store is pinged by the health check when set
	Store Pinger
}

// Server is the service desk HTTP API
type Server struct {
	config              *config.Config
	logger              logger.Logger
	router              *mux.Router
	httpServer          *http.Server
	orderService        *service.OrderService
	dlqRepo             outbox.DeadLetterRepository
	breakers            []*circuitbreaker.CircuitBreaker
	store               Pinger
	gracefulDegradation *middleware.GracefulDegradation
}

// NewServer wires the routes and middleware around deps
func NewServer(cfg *config.Config, deps Dependencies, logger logger.Logger) *Server {
	r := mux.NewRouter()

	s := &Server{
		config:              cfg,
		logger:              logger,
		router:              r,
		orderService:        deps.Orders,
		dlqRepo:             deps.DeadLetters,
		breakers:            deps.Breakers,
		store:               deps.Store,
		gracefulDegradation: middleware.NewGracefulDegradation(logger),
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	if s.config.RateLimitPerMinute > 0 {
		s.router.Use(middleware.RateLimit(middleware.RateLimiterConfig{
			RequestsPerMinute: s.config.RateLimitPerMinute,
		}, s.logger))
	}
	s.router.Use(s.gracefulDegradation.Middleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	// queue routes come before /orders/{id} so "queue" is not taken for an id
	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/queue", s.getQueueHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/queue/next", s.getNextOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/assign", s.assignOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/products", s.attachProductHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/services", s.attachServiceHandler).Methods(http.MethodPost)
	api.HandleFunc("/technicians/{id}/orders", s.getTechnicianOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.getDashboardHandler).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
