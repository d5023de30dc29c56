// Package guard composes the auth state, session monitor and permission
// evaluator into a single allow/deny/redirect decision per navigation.
package guard

import (
	"net/url"

	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/roles"
	"github.com/meridian-portal/meridian-portal/internal/session"
)

// Reason classifies why a navigation was denied.
type Reason string

// Decision reasons, one per check in evaluation order.
const (
	ReasonAllowed           Reason = "allowed"
	ReasonNotAuthenticated  Reason = "not_authenticated"
	ReasonInsufficientRole  Reason = "insufficient_role"
	ReasonMissingPermission Reason = "missing_permission"
	ReasonModuleDenied      Reason = "module_denied"
)

// Redirect targets.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Requirement describes what a route demands from the session.
type Requirement struct {
	Path string
	// Role is a minimum role; the check is level-or-above.
	Role string
	// Permissions required from the role; RequireAll switches the set
	// operation from any-of to all-of.
	Permissions []string
	RequireAll  bool
	// Module is the module the route belongs to.
	Module string
}

// Decision is the outcome of one navigation attempt. It is recomputed per
// attempt and never persisted.
type Decision struct {
	Allowed  bool
	Redirect string
	Reason   Reason
}

// Guard evaluates route requirements against the current session.
type Guard struct {
	store    *session.Store
	monitor  *session.Monitor
	registry *roles.Registry
	eval     *rbac.Evaluator
}

// New constructs a Guard.
func New(store *session.Store, monitor *session.Monitor, registry *roles.Registry, eval *rbac.Evaluator) *Guard {
	return &Guard{store: store, monitor: monitor, registry: registry, eval: eval}
}

// Check evaluates the requirement. Checks run in a fixed order — session,
// role, permissions, module — so the first failing check determines the
// redirect and the user-facing reason.
func (g *Guard) Check(req Requirement) Decision {
	snap := g.store.Snapshot()
	if !snap.Authenticated || g.monitor.State() == session.StateExpired {
		return Decision{
			Allowed:  false,
			Redirect: loginRedirect(req.Path),
			Reason:   ReasonNotAuthenticated,
		}
	}

	roleID := snap.User.RoleID
	if req.Role != "" && !g.registry.HasRole(roleID, req.Role) {
		return Decision{Allowed: false, Redirect: UnauthorizedPath, Reason: ReasonInsufficientRole}
	}

	if len(req.Permissions) > 0 {
		ok := false
		if req.RequireAll {
			ok = g.eval.HasAllPermissions(roleID, req.Permissions)
		} else {
			ok = g.eval.HasAnyPermission(roleID, req.Permissions)
		}
		if !ok {
			return Decision{Allowed: false, Redirect: UnauthorizedPath, Reason: ReasonMissingPermission}
		}
	}

	if req.Module != "" && !g.eval.CanAccessModule(roleID, req.Module) {
		return Decision{Allowed: false, Redirect: UnauthorizedPath, Reason: ReasonModuleDenied}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// loginRedirect preserves the attempted path for post-login return.
func loginRedirect(path string) string {
	if path == "" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(path)
}
