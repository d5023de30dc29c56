package roles

import "sort"

// Registry is the static table of role definitions. Lookups are total: an
// unknown or empty role id resolves to the guest role, which is the single
// place in the codebase that defines what an absent role means.
type Registry struct {
	roles map[string]Role
	guest Role
}

// NewRegistry builds a registry from the provided definitions. A guest role
// must be present; when it is missing a minimal one is synthesised so lookups
// always have a fallback.
func NewRegistry(defs []Role) *Registry {
	reg := &Registry{roles: make(map[string]Role, len(defs))}
	for _, def := range defs {
		reg.roles[def.ID] = def
	}
	guest, ok := reg.roles[RoleGuest]
	if !ok {
		guest = Role{ID: RoleGuest, Name: "Guest", Level: 0, Modules: []string{ModulePublic}}
		reg.roles[RoleGuest] = guest
	}
	reg.guest = guest
	return reg
}

// DefaultRegistry returns the built-in portal role table.
func DefaultRegistry() *Registry {
	return NewRegistry([]Role{
		{
			ID:      RoleGuest,
			Name:    "Guest",
			Level:   0,
			Modules: []string{ModulePublic},
		},
		{
			ID:    RoleInvestor,
			Name:  "Investor",
			Level: 10,
			Permissions: []string{
				"read:portfolio",
				"read:fund",
				"read:report",
				"read:own_profile",
				"update:own_profile",
				"create:subscription",
				"read:own_transaction",
			},
			Modules: []string{
				ModulePublic,
				ModuleInvestorDashboard,
				ModulePortfolio,
				ModuleReports,
			},
			Features: []string{"portfolio_insights", "document_vault"},
		},
		{
			ID:    RoleAdvisor,
			Name:  "Advisor",
			Level: 20,
			Permissions: []string{
				"read:*",
				"create:report",
				"update:client",
				"create:recommendation",
				"update:own_profile",
			},
			Modules: []string{
				ModulePublic,
				ModuleAdvisorDashboard,
				ModuleClients,
				ModulePortfolio,
				ModuleReports,
			},
			Features: []string{"portfolio_insights", "document_vault", "client_messaging"},
		},
		{
			ID:    RoleAdmin,
			Name:  "Administrator",
			Level: 30,
			Permissions: []string{
				"read:*",
				"create:*",
				"update:*",
				"delete:report",
				"delete:recommendation",
			},
			Modules: []string{
				ModulePublic,
				ModuleAdmin,
				ModuleUserManagement,
				ModuleClients,
				ModulePortfolio,
				ModuleReports,
			},
			Features: []string{"portfolio_insights", "document_vault", "client_messaging", "audit_log"},
		},
		{
			ID:          RoleSuperAdmin,
			Name:        "Super Administrator",
			Level:       40,
			Permissions: []string{"*"},
			Modules: []string{
				ModulePublic,
				ModuleAdmin,
				ModuleUserManagement,
				ModuleClients,
				ModuleAdvisorDashboard,
				ModuleInvestorDashboard,
				ModulePortfolio,
				ModuleReports,
			},
			Features: []string{"portfolio_insights", "document_vault", "client_messaging", "audit_log", "impersonation"},
		},
	})
}

// Get returns the role for the given id, falling back to guest for unknown or
// empty ids. It never fails.
func (r *Registry) Get(id string) Role {
	if role, ok := r.roles[id]; ok {
		return role
	}
	return r.guest
}

// Guest returns the fallback role.
func (r *Registry) Guest() Role {
	return r.guest
}

// List returns all known roles ordered by hierarchy level then id.
func (r *Registry) List() []Role {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CompareLevel orders two roles by hierarchy level, returning -1, 0 or 1.
// Unknown ids compare as guest.
func (r *Registry) CompareLevel(a, b string) int {
	la, lb := r.Get(a).Level, r.Get(b).Level
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// HasRole reports whether the role identified by id sits at or above the
// required role's hierarchy level. Role checks across the portal are
// level-or-above; module access is an exact allowlist test instead.
func (r *Registry) HasRole(id, required string) bool {
	return r.CompareLevel(id, required) >= 0
}
