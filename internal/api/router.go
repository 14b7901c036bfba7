package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/siteprobe/siteprobe/internal/auth"
	"github.com/siteprobe/siteprobe/internal/config"
	"github.com/siteprobe/siteprobe/internal/metrics"
	"github.com/siteprobe/siteprobe/internal/middleware"
	"github.com/siteprobe/siteprobe/internal/probe"
)

// Prober is satisfied by *probe.Service
type Prober interface {
	Probe(ctx context.Context, req probe.Request) (*probe.Snapshot, error)
}

// Dependencies holds everything the router wires into handlers
type Dependencies struct {
	Config   *config.Config
	Prober   Prober
	State    probe.StateStore
	DB       Pinger
	Auth     *auth.Service // nil disables the admin API
	SelfTest *SelfTest
	Metrics  *metrics.Metrics // nil disables /metrics
	Trusted  middleware.TrustedProxies
	Logger   *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(deps.Trusted))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	// CORS (if enabled)
	if cfg.CORS.Enabled {
		r.Use(middleware.CORS(
			cfg.CORS.AllowedOrigins,
			cfg.CORS.AllowedMethods,
			cfg.CORS.AllowedHeaders,
			cfg.CORS.MaxAgeSeconds,
		))
	}

	// The probe stays reachable while the site is in maintenance
	exempt := []string{"/rpc", "/xmlrpc", "/health", "/ready"}
	if cfg.Metrics.Path != "" {
		exempt = append(exempt, cfg.Metrics.Path)
	}
	r.Use(middleware.Maintenance(deps.State, logger, exempt...))

	healthHandler := NewHealthHandler(deps.DB)
	rpcHandler := NewRPCHandler(deps.Prober, logger)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Post("/rpc", rpcHandler.Call)
	r.Post("/xmlrpc", rpcHandler.Call)

	if deps.Metrics != nil && cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, deps.Metrics.Handler())
	}

	if deps.Auth != nil {
		authHandler := NewAuthHandler(deps.Auth, logger)
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/login", authHandler.Login)

			// Protected routes (require JWT)
			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(deps.Auth))

				if deps.SelfTest != nil {
					r.Get("/probe/self", NewSelfTestHandler(deps.SelfTest, logger).Get)
				}
			})
		})
	}

	return r
}
