package rbac

import (
	"strconv"
	"strings"
	"sync"

	"github.com/meridian-portal/meridian-portal/internal/roles"
)

// OwnershipContext carries the optional ownership information for Can checks.
// When OwnerID matches the acting user, own_-prefixed grants also apply.
type OwnershipContext struct {
	OwnerID string
}

// Evaluator answers permission, module and CRUD-resource questions for roles.
// Decisions are memoized per (role, query shape) in a flat cache that is
// cleared in full whenever the authenticated role changes. The evaluator
// never fails: missing roles resolve to guest and malformed grants or
// queries deny.
type Evaluator struct {
	registry *roles.Registry

	mu       sync.RWMutex
	compiled map[string][]Permission
	cache    map[string]bool
}

// NewEvaluator constructs an Evaluator over the given role registry.
func NewEvaluator(registry *roles.Registry) *Evaluator {
	return &Evaluator{
		registry: registry,
		compiled: make(map[string][]Permission),
		cache:    make(map[string]bool),
	}
}

// HasPermission reports whether the role holds the permission, verbatim or
// through a wildcard grant. super_admin holds every permission by definition.
func (e *Evaluator) HasPermission(roleID, permission string) bool {
	key := cacheKey(roleID, "perm", permission)
	if v, ok := e.cached(key); ok {
		return v
	}
	action, resource := splitQuery(permission)
	result := action != "" && e.matches(roleID, action, resource)
	e.memoize(key, result)
	return result
}

// HasAnyPermission reports whether the role holds at least one of the
// permissions. An empty list denies.
func (e *Evaluator) HasAnyPermission(roleID string, permissions []string) bool {
	key := cacheKey(roleID, "any", joinQuery(permissions))
	if v, ok := e.cached(key); ok {
		return v
	}
	result := false
	for _, p := range permissions {
		if e.HasPermission(roleID, p) {
			result = true
			break
		}
	}
	e.memoize(key, result)
	return result
}

// HasAllPermissions reports whether the role holds every permission.
// An empty list denies.
func (e *Evaluator) HasAllPermissions(roleID string, permissions []string) bool {
	key := cacheKey(roleID, "all", joinQuery(permissions))
	if v, ok := e.cached(key); ok {
		return v
	}
	result := len(permissions) > 0
	for _, p := range permissions {
		if !e.HasPermission(roleID, p) {
			result = false
			break
		}
	}
	e.memoize(key, result)
	return result
}

// CanAccessModule reports whether the module is on the role's allowlist.
// Unknown roles carry the guest module set.
func (e *Evaluator) CanAccessModule(roleID, moduleID string) bool {
	key := cacheKey(roleID, "module", moduleID)
	if v, ok := e.cached(key); ok {
		return v
	}
	result := e.registry.Get(roleID).HasModule(moduleID)
	e.memoize(key, result)
	return result
}

// Can checks action:resource for the role, additionally accepting an
// action:own_resource grant when the acting user owns the record in context.
// Ownership lets "a user may update their own profile" be granted without
// blanket update access.
func (e *Evaluator) Can(roleID, userID, action, resource string, ctx OwnershipContext) bool {
	action = strings.ToLower(strings.TrimSpace(action))
	resource = strings.ToLower(strings.TrimSpace(resource))
	if action == "" || resource == "" {
		return false
	}
	if e.matches(roleID, action, resource) {
		return true
	}
	if ctx.OwnerID != "" && userID != "" && ctx.OwnerID == userID {
		return e.matches(roleID, action, "own_"+resource)
	}
	return false
}

// ClearCache drops every memoized decision. Called on login, logout and role
// switch; the cache is never invalidated per entry.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]bool)
	e.mu.Unlock()
}

// CacheSize returns the number of memoized decisions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Evaluator) matches(roleID, action, resource string) bool {
	for _, grant := range e.grants(roleID) {
		if grant.Matches(action, resource) {
			return true
		}
	}
	return false
}

// grants returns the compiled grant list for a role. Grants are parsed once
// per role; the registry is immutable so compiled entries are never evicted.
func (e *Evaluator) grants(roleID string) []Permission {
	role := e.registry.Get(roleID)

	e.mu.RLock()
	grants, ok := e.compiled[role.ID]
	e.mu.RUnlock()
	if ok {
		return grants
	}

	grants = make([]Permission, 0, len(role.Permissions))
	for _, raw := range role.Permissions {
		if p, ok := ParsePermission(raw); ok {
			grants = append(grants, p)
		}
	}
	e.mu.Lock()
	e.compiled[role.ID] = grants
	e.mu.Unlock()
	return grants
}

func (e *Evaluator) cached(key string) (bool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.cache[key]
	return v, ok
}

func (e *Evaluator) memoize(key string, value bool) {
	e.mu.Lock()
	e.cache[key] = value
	e.mu.Unlock()
}

func cacheKey(roleID, shape, query string) string {
	return roleID + "|" + shape + "|" + strings.ToLower(query)
}

// joinQuery builds an unambiguous cache key segment for a permission list.
// Each element is length-prefixed so no permission string, whatever bytes it
// contains, can collide with a differently shaped list.
func joinQuery(permissions []string) string {
	var b strings.Builder
	for _, p := range permissions {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
		b.WriteByte(';')
	}
	return b.String()
}
