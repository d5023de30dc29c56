package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/roles"
)

func newEvaluator() *rbac.Evaluator {
	return rbac.NewEvaluator(roles.DefaultRegistry())
}

func TestSuperAdminHoldsEveryPermission(t *testing.T) {
	eval := newEvaluator()

	for _, perm := range []string{"read:fund", "delete:user", "approve:withdrawal", "anything:at_all"} {
		assert.True(t, eval.HasPermission(roles.RoleSuperAdmin, perm), perm)
	}
}

func TestWildcardActionSegment(t *testing.T) {
	reg := roles.NewRegistry([]roles.Role{
		{ID: "creator", Level: 1, Permissions: []string{"create:*"}},
	})
	eval := rbac.NewEvaluator(reg)

	assert.True(t, eval.HasPermission("creator", "create:user"))
	assert.True(t, eval.HasPermission("creator", "create:fund"))
	assert.False(t, eval.HasPermission("creator", "delete:user"))
}

func TestWildcardResourceSegment(t *testing.T) {
	reg := roles.NewRegistry([]roles.Role{
		{ID: "fund_manager", Level: 1, Permissions: []string{"*:fund"}},
	})
	eval := rbac.NewEvaluator(reg)

	assert.True(t, eval.HasPermission("fund_manager", "read:fund"))
	assert.True(t, eval.HasPermission("fund_manager", "delete:fund"))
	assert.False(t, eval.HasPermission("fund_manager", "read:user"))
}

func TestVerbatimPermission(t *testing.T) {
	eval := newEvaluator()

	assert.True(t, eval.HasPermission(roles.RoleInvestor, "read:portfolio"))
	assert.False(t, eval.HasPermission(roles.RoleInvestor, "delete:portfolio"))
}

func TestDeterminism(t *testing.T) {
	eval := newEvaluator()

	first := eval.HasPermission(roles.RoleAdvisor, "read:client")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, eval.HasPermission(roles.RoleAdvisor, "read:client"))
	}
}

func TestHasAnyAndAllShortCircuit(t *testing.T) {
	eval := newEvaluator()

	assert.True(t, eval.HasAnyPermission(roles.RoleInvestor, []string{"delete:fund", "read:portfolio"}))
	assert.False(t, eval.HasAnyPermission(roles.RoleInvestor, []string{"delete:fund", "delete:user"}))
	assert.True(t, eval.HasAllPermissions(roles.RoleInvestor, []string{"read:portfolio", "read:fund"}))
	assert.False(t, eval.HasAllPermissions(roles.RoleInvestor, []string{"read:portfolio", "delete:fund"}))

	// Fail closed on empty queries.
	assert.False(t, eval.HasAnyPermission(roles.RoleSuperAdmin, nil))
	assert.False(t, eval.HasAllPermissions(roles.RoleSuperAdmin, nil))
}

func TestUnknownRoleEvaluatesAsGuest(t *testing.T) {
	eval := newEvaluator()

	assert.False(t, eval.HasPermission("mystery", "read:portfolio"))
	assert.True(t, eval.CanAccessModule("mystery", roles.ModulePublic))
	assert.False(t, eval.CanAccessModule("mystery", roles.ModuleInvestorDashboard))
}

func TestModuleAccess(t *testing.T) {
	eval := newEvaluator()

	assert.True(t, eval.CanAccessModule(roles.RoleInvestor, roles.ModuleInvestorDashboard))
	assert.False(t, eval.CanAccessModule(roles.RoleInvestor, roles.ModuleAdmin))
	assert.True(t, eval.CanAccessModule(roles.RoleAdmin, roles.ModuleAdmin))
}

func TestOwnershipOverride(t *testing.T) {
	eval := newEvaluator()

	// Investors hold update:own_profile but not blanket update:profile.
	assert.False(t, eval.HasPermission(roles.RoleInvestor, "update:profile"))
	assert.True(t, eval.Can(roles.RoleInvestor, "u-1", "update", "profile", rbac.OwnershipContext{OwnerID: "u-1"}))
	assert.False(t, eval.Can(roles.RoleInvestor, "u-1", "update", "profile", rbac.OwnershipContext{OwnerID: "u-2"}))
	assert.False(t, eval.Can(roles.RoleInvestor, "u-1", "update", "profile", rbac.OwnershipContext{}))
	assert.False(t, eval.Can(roles.RoleInvestor, "", "update", "profile", rbac.OwnershipContext{OwnerID: ""}))
}

func TestCanWithBlanketPermissionIgnoresOwnership(t *testing.T) {
	eval := newEvaluator()

	assert.True(t, eval.Can(roles.RoleAdvisor, "u-9", "read", "client", rbac.OwnershipContext{}))
}

func TestCacheClearedWholesale(t *testing.T) {
	eval := newEvaluator()

	eval.HasPermission(roles.RoleInvestor, "read:portfolio")
	eval.HasAnyPermission(roles.RoleInvestor, []string{"read:fund"})
	eval.CanAccessModule(roles.RoleInvestor, roles.ModulePortfolio)
	assert.Greater(t, eval.CacheSize(), 0)

	eval.ClearCache()
	assert.Equal(t, 0, eval.CacheSize())

	// Queries after the clear are recomputed, not served stale.
	assert.True(t, eval.HasPermission(roles.RoleInvestor, "read:portfolio"))
	assert.Greater(t, eval.CacheSize(), 0)
}

func TestListQueriesNeverShareCacheEntries(t *testing.T) {
	eval := newEvaluator()

	// Warm the cache with a two-element list that passes, then query the
	// single malformed permission whose text matches a naive join of that
	// list. It must be evaluated on its own and deny.
	assert.True(t, eval.HasAnyPermission(roles.RoleInvestor, []string{"read:portfolio", "x"}))
	assert.False(t, eval.HasAnyPermission(roles.RoleInvestor, []string{"read:portfolio,x"}))

	assert.True(t, eval.HasAllPermissions(roles.RoleInvestor, []string{"read:portfolio", "read:fund"}))
	assert.False(t, eval.HasAllPermissions(roles.RoleInvestor, []string{"read:portfolio,read:fund"}))

	// And the reverse warm order must not replay the denial for the list.
	fresh := newEvaluator()
	assert.False(t, fresh.HasAnyPermission(roles.RoleInvestor, []string{"read:portfolio,x"}))
	assert.True(t, fresh.HasAnyPermission(roles.RoleInvestor, []string{"read:portfolio", "x"}))
}

func TestMalformedGrantDenies(t *testing.T) {
	reg := roles.NewRegistry([]roles.Role{
		{ID: "broken", Level: 1, Permissions: []string{"a:b:c", ""}},
	})
	eval := rbac.NewEvaluator(reg)

	assert.False(t, eval.HasPermission("broken", "a:b"))
	assert.False(t, eval.HasPermission("broken", ""))
}
