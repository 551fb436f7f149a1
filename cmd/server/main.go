// Package main is the entrypoint for the DataForge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priyamshenoy/dataforge/internal/api"
	"github.com/priyamshenoy/dataforge/internal/api/handler"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/internal/auth"
	"github.com/priyamshenoy/dataforge/internal/cache"
	"github.com/priyamshenoy/dataforge/internal/config"
	"github.com/priyamshenoy/dataforge/internal/orchestrator"
	"github.com/priyamshenoy/dataforge/internal/ratelimit"
	"github.com/priyamshenoy/dataforge/internal/retention"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and domain services
	docs := store.NewPostgresStore(pool)

	limiter := ratelimit.New(
		ratelimit.WithDefaultMaxJobs(cfg.RateLimit.MaxJobsPerCustomer),
		ratelimit.WithCooldownSeconds(cfg.RateLimit.CooldownSeconds),
	)
	sender := webhook.NewHTTPSender(cfg.Webhook.DeliveryTimeout)
	dispatcher := webhook.NewDispatcher(docs, sender)
	defer dispatcher.Flush()

	orch := orchestrator.New(docs, limiter, dispatcher, redisCache)
	policies := retention.NewPolicyStore(docs)
	keys := auth.NewKeyService(docs)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(docs),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: healthHandler(docs, redisCache),

		CreateJobHandler:     handler.NewCreateJobHandler(orch),
		GetJobHandler:        handler.NewGetJobHandler(orch),
		ListJobsHandler:      handler.NewListJobsHandler(orch),
		TransitionJobHandler: handler.NewTransitionJobHandler(orch),
		CancelJobHandler:     handler.NewCancelJobHandler(orch),
		ResumeJobHandler:     handler.NewResumeJobHandler(orch),
		LimitsHandler:        handler.NewLimitsHandler(orch),

		RegisterWebhookHandler: handler.NewRegisterWebhookHandler(dispatcher),
		ListWebhooksHandler:    handler.NewListWebhooksHandler(dispatcher),
		DeleteWebhookHandler:   handler.NewDeleteWebhookHandler(dispatcher),

		GetRetentionHandler: handler.NewGetRetentionHandler(policies),
		SetRetentionHandler: handler.NewSetRetentionHandler(policies),

		CreateKeyHandler: handler.NewCreateKeyHandler(keys),
		ListKeysHandler:  handler.NewListKeysHandler(keys),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keys),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.DocumentStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
