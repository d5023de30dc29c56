package rbac

import (
	"log/slog"
	"net/http"

	"github.com/meridian-portal/meridian-portal/internal/shared"
)

// Middleware wires permission checks into HTTP handlers. The principal is
// taken from the request context; requests without one are denied.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// RequireAny ensures the current role holds at least one of the permissions.
// With no permissions listed the check is a no-op.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if m.Evaluator.HasAnyPermission(principal.RoleID, perms) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied", slog.String("role", principal.RoleID), slog.Any("required_any", perms))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current role holds every listed permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if m.Evaluator.HasAllPermissions(principal.RoleID, perms) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied", slog.String("role", principal.RoleID), slog.Any("required_all", perms))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
