package domain

// RouteName identifies a navigation target independent of its path.
type RouteName string

const (
	RouteLogin               RouteName = "login"
	RouteForcePasswordChange RouteName = "force-password-change"
	RouteUnauthorized        RouteName = "unauthorized"
	RouteNotFound            RouteName = "not-found"
	RouteAdminDashboard      RouteName = "admin-dashboard"
	RouteManagerDashboard    RouteName = "manager-dashboard"
	RouteHealthDashboard     RouteName = "health-dashboard"
)

// RedirectQueryKey carries the original path on a redirect to login.
const RedirectQueryKey = "redirect"

// CapabilityKind is what a route demands of the current session.
type CapabilityKind string

const (
	CapNone          CapabilityKind = "none"
	CapAuthenticated CapabilityKind = "authenticated"
	CapRoles         CapabilityKind = "roles"
	CapGuestOnly     CapabilityKind = "guest-only"
)

// Capability is the requirement attached to a route. Roles is only
// meaningful when Kind is CapRoles.
type Capability struct {
	Kind  CapabilityKind
	Roles []Role
}

func Public() Capability        { return Capability{Kind: CapNone} }
func Authenticated() Capability { return Capability{Kind: CapAuthenticated} }
func GuestOnly() Capability     { return Capability{Kind: CapGuestOnly} }

// RequireRoles builds a capability satisfied by any of roles.
func RequireRoles(roles ...Role) Capability {
	return Capability{Kind: CapRoles, Roles: append([]Role(nil), roles...)}
}

// Permits reports whether role satisfies the role list of c. Capabilities
// that name no roles permit everyone.
func (c Capability) Permits(role Role) bool {
	if c.Kind != CapRoles || len(c.Roles) == 0 {
		return true
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NavIntent is a single navigation attempt handed to the guard.
type NavIntent struct {
	Name       RouteName
	FullPath   string
	Capability Capability
}

// Decision is the guard verdict returned to the router: either Allow, or a
// redirect to a named route with an optional query.
type Decision struct {
	Allow    bool
	Redirect RouteName
	Query    map[string]string
}

// Allow lets the navigation commit.
func Allow() Decision { return Decision{Allow: true} }

// RedirectTo replaces the navigation with name.
func RedirectTo(name RouteName) Decision { return Decision{Redirect: name} }

// RedirectToLogin sends the user to the login route carrying returnTo.
func RedirectToLogin(returnTo string) Decision {
	return Decision{
		Redirect: RouteLogin,
		Query:    map[string]string{RedirectQueryKey: returnTo},
	}
}

// String renders the decision for logs and metric labels.
func (d Decision) String() string {
	if d.Allow {
		return "allow"
	}
	return "redirect:" + string(d.Redirect)
}

// DashboardFor maps a role to its landing route. ok is false for roles the
// client does not know.
func DashboardFor(role Role) (RouteName, bool) {
	switch role {
	case RoleAdmin:
		return RouteAdminDashboard, true
	case RoleManager:
		return RouteManagerDashboard, true
	case RoleProfessional:
		return RouteHealthDashboard, true
	}
	return "", false
}
