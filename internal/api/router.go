// Package api provides the operator HTTP API of the inventory worker.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/breatheroute/emissions/internal/api/handler"
	"github.com/breatheroute/emissions/internal/api/middleware"
	"github.com/breatheroute/emissions/internal/auth"
	"github.com/breatheroute/emissions/internal/inventory"
)

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	// Metrics records HTTP server metrics when set.
	Metrics *middleware.Metrics

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	Tokens middleware.TokenValidator
	Runner handler.RunStarter
	Store  inventory.ResultStore

	// Optional dependencies reported by the ops endpoints.
	Database    handler.Pinger
	Providers   handler.ProviderHealthSource
	RunnerStats handler.RunnerStats

	// MetricsHandler serves /metrics (default promhttp.Handler()).
	MetricsHandler http.Handler
}

// NewRouter creates the chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "emissions-worker"
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()

	// Order matters: request ID first so every later layer can log it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Database:  cfg.Database,
		Providers: cfg.Providers,
		Runner:    cfg.RunnerStats,
	})
	runsHandler := handler.NewRunsHandler(cfg.Runner, cfg.Store, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)

	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.StandardRateLimit))
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Use(authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(auth.ScopeRunsRead))
				r.Use(middleware.RateLimitByOperator(middleware.StandardRateLimit))
				r.Get("/", runsHandler.ListRuns)
				r.Get("/{runId}", runsHandler.GetRun)
			})

			r.With(
				middleware.RequireScope(auth.ScopeRunsWrite),
				middleware.RateLimitByOperator(middleware.RunSubmitRateLimit),
				middleware.RequireJSON,
			).Post("/", runsHandler.CreateRun)
		})
	})

	return r
}
