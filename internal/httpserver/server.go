package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/coderomm/Xolana/internal/airdrop"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/idempotency"
	"github.com/coderomm/Xolana/internal/logger"
	"github.com/coderomm/Xolana/internal/metrics"
	"github.com/coderomm/Xolana/internal/ratelimit"
	"github.com/coderomm/Xolana/internal/search"
	"github.com/coderomm/Xolana/internal/stake"
)

var (
	serverStartTime = time.Now()
)

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg              *config.Config
	stake            *stake.Service
	airdrop          *airdrop.Service
	search           *search.Service
	idempotencyStore idempotency.Store
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, stakeSvc *stake.Service, airdropSvc *airdrop.Service, searchSvc *search.Service, idempotencyStore idempotency.Store, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:              cfg,
			stake:            stakeSvc,
			airdrop:          airdropSvc,
			search:           searchSvc,
			idempotencyStore: idempotencyStore,
			metrics:          metricsCollector,
			logger:           appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, cfg, stakeSvc, airdropSvc, searchSvc, idempotencyStore, metricsCollector, appLogger)

	return s
}

// ConfigureRouter attaches the Xolana routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, stakeSvc *stake.Service, airdropSvc *airdrop.Service, searchSvc *search.Service, idempotencyStore idempotency.Store, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	handler := handlers{
		cfg:              cfg,
		stake:            stakeSvc,
		airdrop:          airdropSvc,
		search:           searchSvc,
		idempotencyStore: idempotencyStore,
		metrics:          metricsCollector,
		logger:           appLogger,
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           300,
		}).Handler)
	}

	// Security headers middleware (applied first for all responses)
	router.Use(securityHeadersMiddleware)

	// RequestID must run before the logging middleware so the logger picks up
	// the router's request ID instead of generating a second one
	router.Use(middleware.RequestID)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// Rate limiting middleware (applied globally)
	rateLimitCfg := ratelimit.FromConfig(cfg.RateLimit, metricsCollector)
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.WalletLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	// Lightweight endpoints with 5s timeout (liveness, health, metrics)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/", handler.root)
		r.Get("/health", handler.health)
		// Prometheus metrics endpoint, protected by an optional admin key
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", promhttp.Handler())
	})

	// Idempotency middleware (24 hour cache for mutating requests)
	idempotencyMW := idempotency.Middleware(idempotencyStore, 24*time.Hour)

	// Chain-touching endpoints with 60s timeout (transaction confirmation,
	// faucet and search upstreams)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Helius webhook (NOT idempotency-keyed; replay protection lives in
		// the processed-stake store, keyed on the deposit signature)
		r.Post("/helius", handler.heliusWebhook)

		r.With(idempotencyMW).Post("/stake", handler.prepareStake)

		// The airdrop route carries its own strict per-IP limiter on top of
		// the global limiters
		r.With(
			ratelimit.AirdropLimiter(cfg.Airdrop, metricsCollector),
			idempotencyMW,
		).Post("/request-airdrop", handler.requestAirdrop)

		r.Post("/proxy", handler.searchProxy)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
