package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/welldanyogia/fieldguard/internal/api"
	"github.com/welldanyogia/fieldguard/internal/auth"
	"github.com/welldanyogia/fieldguard/internal/fieldcipher"
	"github.com/welldanyogia/fieldguard/internal/fields"
	"github.com/welldanyogia/fieldguard/internal/health"
	"github.com/welldanyogia/fieldguard/internal/metrics"
	appmw "github.com/welldanyogia/fieldguard/internal/middleware"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

// routerDeps are the collaborators the HTTP surface is built from
type routerDeps struct {
	Logger          *slog.Logger
	AllowedOrigins  []string
	TokenService    *auth.TokenService
	Cipher          *fieldcipher.Cipher
	Fields          *fields.Service
	APILimiter      *ratelimit.Limiter
	ThrottleLimiter *ratelimit.Limiter
	Health          *health.Handler
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes and metrics are not authenticated
	r.Get("/health", deps.Health.Health)
	r.Get("/health/live", deps.Health.Liveness)
	r.Get("/health/ready", deps.Health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	authMiddleware := appmw.NewAuthMiddleware(deps.TokenService)
	apiRateLimit := appmw.NewRateLimitMiddleware(
		deps.APILimiter,
		deps.APILimiter.DefaultRule(),
		appmw.ByOwner("api:"),
		deps.Logger,
	)
	protected := []func(http.Handler) http.Handler{authMiddleware.Authenticate, apiRateLimit.Handler}

	r.Route("/api/v1", func(r chi.Router) {
		fields.RegisterRoutes(r, fields.NewHandler(deps.Fields, deps.Logger), protected...)
		api.RegisterCipherRoutes(r, api.NewCipherHandler(deps.Cipher, deps.Logger), protected...)
		api.RegisterThrottleRoutes(r, api.NewThrottleHandler(deps.ThrottleLimiter, deps.Logger), protected...)
	})

	return r
}
