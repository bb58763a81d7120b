package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matheuspdias/managerclin/internal/api/router"
	"github.com/matheuspdias/managerclin/internal/app/bootstrap"
	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/availability"
	appconfig "github.com/matheuspdias/managerclin/internal/config"
	"github.com/matheuspdias/managerclin/internal/credits"
	"github.com/matheuspdias/managerclin/internal/dashboard"
	"github.com/matheuspdias/managerclin/internal/scheduling"
	"github.com/matheuspdias/managerclin/internal/telemedicine"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting managerclin API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer application.close()

	var workers sync.WaitGroup
	if cfg.MeteringInProcess {
		workers.Add(1)
		go func() {
			defer workers.Done()
			application.stack.NewSweeper(cfg, logger).Start(ctx)
		}()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	workers.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	stack   *bootstrap.Stack
	close   func()
}

// setup connects the optional backends and builds the HTTP handler.
func setup(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	databaseURL := cfg.DatabaseURL
	if cfg.UseMemoryStore {
		databaseURL = ""
	} else if databaseURL == "" && cfg.Env == "production" {
		return nil, errors.New("DATABASE_URL is required in production")
	}
	pool, err := bootstrap.ConnectPostgres(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	closeFn := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if pool != nil {
			pool.Close()
		}
	}

	email, err := bootstrap.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		closeFn()
		return nil, err
	}

	metricsHandler, reg := setupMetrics()
	stack, err := bootstrap.BuildStack(ctx, cfg, pool, email, reg, logger)
	if err != nil {
		closeFn()
		return nil, err
	}

	checks := map[string]router.Pinger{}
	if pool != nil {
		checks["postgres"] = router.PingFunc(pool.Ping)
	}
	if redisClient != nil {
		checks["redis"] = router.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	routerCfg := &router.Config{
		Logger:              logger,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthChecks:        checks,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		ActorAuthSecret:     cfg.AuthJWTSecret,
		RateLimitPerSecond:  cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		IdempotencyStore:    bootstrap.BuildIdempotencyStore(redisClient, logger),
		IdempotencyTTL:      cfg.IdempotencyTTL,
		AvailabilityHandler: availability.NewHandler(stack.Availability, logger),
		SchedulingHandler:   scheduling.NewHandler(stack.Scheduling, logger),
		TelemedicineHandler: telemedicine.NewHandler(stack.Telemedicine, stack.Events, logger),
		CreditsHandler:      credits.NewHandler(stack.Credits, logger),
		AuditHandler:        audit.NewHandler(stack.Audit, logger),
	}
	if stack.Dashboard != nil {
		routerCfg.DashboardHandler = dashboard.NewHandler(stack.Dashboard, reg, logger)
	}

	return &app{handler: router.New(routerCfg), stack: stack, close: closeFn}, nil
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg
}
