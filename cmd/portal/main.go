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

	"github.com/meridian-portal/meridian-portal/internal/activity"
	"github.com/meridian-portal/meridian-portal/internal/app"
	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/observability"
	"github.com/meridian-portal/meridian-portal/internal/portal"
	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/session"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	identityClient := identity.NewHTTPClient(cfg.IdentityURL, cfg.IdentityTimeout, logger)

	core := portal.New(portal.Options{
		Logger:           logger,
		Client:           identityClient,
		ActivityStore:    activity.NewRedisStore(redisClient, cfg.StateTTL),
		Scheduler:        session.NewScheduler(),
		Metrics:          metrics,
		IdleTimeout:      cfg.IdleTimeout,
		WarningWindow:    cfg.WarningWindow,
		RefreshInterval:  cfg.RefreshInterval,
		RefreshThreshold: cfg.RefreshThreshold,
	})
	if err := core.Start(ctx); err != nil {
		logger.Error("start core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Stop()

	handler := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PortalHandler:  portal.NewHandler(logger, core),
		RBACMiddleware: rbac.Middleware{Evaluator: core.Evaluator(), Logger: logger},
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("portal gateway listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
