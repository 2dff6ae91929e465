// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/token-analytics/internal/analytics"
	"github.com/token-analytics/internal/broadcast"
	"github.com/token-analytics/internal/job"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/observability"
	"github.com/token-analytics/internal/service"
	"github.com/token-analytics/internal/storage"
	"github.com/token-analytics/internal/types"
)

// AnalyticsServiceInterface defines the analytics operations served over HTTP
type AnalyticsServiceInterface interface {
	ActiveTokens(ctx context.Context) ([]types.Token, error)
	AnalyzeToken(ctx context.Context, address string) (*types.Analysis, error)
	RunPass(ctx context.Context) (*service.PassResult, error)
	Latest(ctx context.Context, address string) (*types.Analysis, error)
	History(ctx context.Context, address string, limit int) ([]*types.Analysis, error)
	Signal(ctx context.Context, address string) (*service.SignalDetail, error)
	Signals(ctx context.Context) ([]broadcast.TradingSignal, error)
	MarketOverview(ctx context.Context) (analytics.MarketOverview, error)
	TopPerformers(ctx context.Context, metric string, limit int) ([]service.Performer, error)
	Risk(ctx context.Context, address string) (*service.RiskReport, error)
	Status(ctx context.Context) service.Status
}

// SchedulerInterface defines the job scheduler operations served over HTTP
type SchedulerInterface interface {
	Status() job.Status
	SetActive(id string, active bool) error
	Job(id string) (models.AutomationJob, bool)
}

// HubInterface is the websocket endpoint
type HubInterface interface {
	http.Handler
	ClientCount() int
	SubscriptionStats() map[string]int
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	analytics  AnalyticsServiceInterface
	scheduler  SchedulerInterface // optional
	hub        HubInterface       // optional
	deps       map[string]storage.Pinger
	config     *ServerConfig
	startedAt  time.Time
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // Per client
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, analytics AnalyticsServiceInterface, scheduler SchedulerInterface, hub HubInterface) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		analytics: analytics,
		scheduler: scheduler,
		hub:       hub,
		config:    config,
		startedAt: time.Now(),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Streaming endpoints are registered ahead of the middleware chain
	if s.hub != nil {
		s.router.Handle("/ws", s.hub).Methods(http.MethodGet)
	}
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	root := s.router.PathPrefix("/").Subrouter()
	root.Use(LoggingMiddleware)
	root.Use(RecoveryMiddleware)
	root.Use(CORSMiddleware)
	root.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	root.Use(CompressionMiddleware)

	s.setupRoutes(root)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(root *mux.Router) {
	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := root.PathPrefix("/api").Subrouter()

	// Tokens and analyses
	api.HandleFunc("/tokens", s.handleGetTokens).Methods(http.MethodGet)
	api.HandleFunc("/analysis/{address}", s.handleGetAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/analysis/{address}/history", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/analyze/{address}", s.handleAnalyze).Methods(http.MethodPost)

	// Signals
	api.HandleFunc("/signals", s.handleGetSignals).Methods(http.MethodGet)
	api.HandleFunc("/signals/{address}", s.handleGetSignal).Methods(http.MethodGet)

	// Market and risk
	api.HandleFunc("/market/overview", s.handleMarketOverview).Methods(http.MethodGet)
	api.HandleFunc("/market/top-performers", s.handleTopPerformers).Methods(http.MethodGet)
	api.HandleFunc("/risk/{address}", s.handleGetRisk).Methods(http.MethodGet)

	// Operations
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleGetJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleUpdateJob).Methods(http.MethodPut)

	// Preflight requests are answered by CORSMiddleware
	root.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetDependencies registers connections reported by /health
func (s *Server) SetDependencies(deps map[string]storage.Pinger) {
	s.deps = deps
}

// handleHealth handles health check requests. A failing dependency marks the
// service degraded; analyses are still served from the remaining stores.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	var deps map[string]string
	if len(s.deps) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		deps = storage.PingAll(ctx, s.deps)
		for _, result := range deps {
			if result != "ok" {
				status = "degraded"
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"service":      "token-analytics",
		"dependencies": deps,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp":    time.Now().UnixMilli(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
