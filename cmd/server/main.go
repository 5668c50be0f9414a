package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/fieldguard/internal/auth"
	"github.com/welldanyogia/fieldguard/internal/config"
	"github.com/welldanyogia/fieldguard/internal/fieldcipher"
	"github.com/welldanyogia/fieldguard/internal/fields"
	"github.com/welldanyogia/fieldguard/internal/health"
	"github.com/welldanyogia/fieldguard/internal/logger"
	"github.com/welldanyogia/fieldguard/internal/metrics"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
	"github.com/welldanyogia/fieldguard/internal/repository"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fieldCipher, err := fieldcipher.New(fieldcipher.Config{
		Secret:         cfg.Cipher.Secret,
		Environment:    cfg.Environment,
		AllowDevSecret: cfg.Cipher.AllowDevSecret,
		Iterations:     cfg.Cipher.Iterations,
	}, log)
	if err != nil {
		return err
	}

	// Setup database connection
	db, err := repository.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database",
		slog.String("database", cfg.Database.DBName),
		slog.String("host", cfg.Database.Host),
	)

	dbStats := metrics.NewDBStatsCollector(db, log)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	// Limiter state lives in Redis when configured so replicas share budgets
	var redisClient *redis.Client
	newStore := func() ratelimit.Store { return ratelimit.NewMemoryStore() }
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		newStore = func() ratelimit.Store { return ratelimit.NewRedisStore(redisClient, cfg.Redis.Prefix) }
		log.Info("rate limits stored in redis", slog.String("addr", cfg.Redis.Addr))
	}

	throttleLimiter := ratelimit.New(newStore(),
		ratelimit.WithName("throttle"),
		ratelimit.WithLogger(log),
		ratelimit.WithDefaultRule(ratelimit.Rule{MaxAttempts: cfg.RateLimit.MaxAttempts, Window: cfg.RateLimit.Window}),
	)
	apiLimiter := ratelimit.New(newStore(),
		ratelimit.WithName("api"),
		ratelimit.WithLogger(log),
		ratelimit.WithDefaultRule(ratelimit.Rule{MaxAttempts: cfg.RateLimit.APIMaxRequests, Window: cfg.RateLimit.Window}),
	)
	for _, l := range []*ratelimit.Limiter{throttleLimiter, apiLimiter} {
		if err := l.DefaultRule().Validate(); err != nil {
			return err
		}
		l.Start(ctx, cfg.RateLimit.SweepInterval)
		defer l.Stop()
	}

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret: cfg.JWT.AccessSecret,
		Issuer:       cfg.JWT.Issuer,
	})

	fieldService := fields.NewService(fields.ServiceConfig{
		Repository: repository.NewProtectedFieldRepo(db),
		Cipher:     fieldCipher,
		Logger:     log,
	})

	healthHandler := health.NewHandler(health.Config{
		DB:       db,
		Limiters: []health.Limiter{throttleLimiter, apiLimiter},
		Version:  version,
	})

	router := newRouter(routerDeps{
		Logger:          log,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TokenService:    tokenService,
		Cipher:          fieldCipher,
		Fields:          fieldService,
		APILimiter:      apiLimiter,
		ThrottleLimiter: throttleLimiter,
		Health:          healthHandler,
	})

	// Create server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", slog.String("addr", addr), slog.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}
