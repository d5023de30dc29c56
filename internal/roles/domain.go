package roles

// Role represents an immutable role definition: display name, hierarchy level,
// granted permission strings, accessible modules and enabled feature flags.
type Role struct {
	ID          string
	Name        string
	Level       int
	Permissions []string
	Modules     []string
	Features    []string
}

// Well-known role identifiers.
const (
	RoleGuest      = "guest"
	RoleInvestor   = "investor"
	RoleAdvisor    = "advisor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Module identifiers exposed by the portal.
const (
	ModulePublic            = "public"
	ModuleInvestorDashboard = "investor_dashboard"
	ModulePortfolio         = "portfolio"
	ModuleReports           = "reports"
	ModuleAdvisorDashboard  = "advisor_dashboard"
	ModuleClients           = "clients"
	ModuleAdmin             = "admin"
	ModuleUserManagement    = "user_management"
)

// HasModule reports whether the role allowlists the given module.
func (r Role) HasModule(moduleID string) bool {
	for _, m := range r.Modules {
		if m == moduleID {
			return true
		}
	}
	return false
}

// HasFeature reports whether the role enables the given feature flag.
func (r Role) HasFeature(flag string) bool {
	for _, f := range r.Features {
		if f == flag {
			return true
		}
	}
	return false
}
