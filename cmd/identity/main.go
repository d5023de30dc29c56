// Command identity runs the development identity provider: a small HTTP
// service issuing JWTs for the seed accounts. Not for production use.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"github.com/meridian-portal/meridian-portal/internal/app"
	"github.com/meridian-portal/meridian-portal/internal/identity"
)

type config struct {
	Addr     string        `envconfig:"IDENTITY_ADDR" default:":8081"`
	Secret   string        `envconfig:"IDENTITY_SECRET" default:"dev-only-secret"`
	TokenTTL time.Duration `envconfig:"IDENTITY_TOKEN_TTL" default:"1h"`
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	provider, err := identity.NewDevServer(logger, cfg.Secret, cfg.TokenTTL, identity.DefaultDevAccounts())
	if err != nil {
		logger.Error("seed accounts", slog.Any("error", err))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.RequestID, middleware.Recoverer)
	provider.MountRoutes(r)

	server := &http.Server{Addr: cfg.Addr, Handler: r, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		logger.Info("identity provider listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
