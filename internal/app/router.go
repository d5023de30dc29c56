package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meridian-portal/meridian-portal/internal/guard"
	"github.com/meridian-portal/meridian-portal/internal/observability"
	"github.com/meridian-portal/meridian-portal/internal/portal"
	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	PortalHandler  *portal.Handler
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router for the portal gateway. Module route
// groups are wrapped by the access guard so every navigation is decided by
// the fixed check order: session, role, permissions, module.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Metrics:  params.Metrics,
		Activity: params.PortalHandler.Activity,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	loginLimit, loginWindow := 10, defaultLoginWindow(params.Config)
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}
	r.Route("/auth", func(auth chi.Router) {
		auth.Use(httprate.Limit(loginLimit, loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.PortalHandler.MountRoutes(auth)
	})

	h := params.PortalHandler
	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(h.Guard(guard.Requirement{Role: roles.RoleInvestor, Module: roles.ModuleInvestorDashboard}))
			g.Get("/investor/dashboard", h.ModuleInfo(roles.ModuleInvestorDashboard))
		})
		api.Group(func(g chi.Router) {
			g.Use(h.Guard(guard.Requirement{
				Role:        roles.RoleInvestor,
				Module:      roles.ModulePortfolio,
				Permissions: []string{"read:portfolio"},
			}))
			g.Get("/portfolio", h.ModuleInfo(roles.ModulePortfolio))
		})
		api.Group(func(g chi.Router) {
			g.Use(h.Guard(guard.Requirement{
				Role:        roles.RoleAdvisor,
				Module:      roles.ModuleClients,
				Permissions: []string{"read:client"},
			}))
			g.Get("/clients", h.ModuleInfo(roles.ModuleClients))
		})
		api.Group(func(g chi.Router) {
			g.Use(h.Guard(guard.Requirement{Role: roles.RoleAdmin, Module: roles.ModuleAdmin}))
			g.Get("/admin", h.ModuleInfo(roles.ModuleAdmin))
			g.With(params.RBACMiddleware.RequireAll("update:user")).
				Get("/admin/users", h.ModuleInfo(roles.ModuleUserManagement))
		})
	})

	return r
}

func defaultLoginWindow(cfg *Config) time.Duration {
	if cfg != nil && cfg.LoginRateWindow > 0 {
		return cfg.LoginRateWindow
	}
	return time.Minute
}
