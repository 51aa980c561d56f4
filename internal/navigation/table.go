// Package navigation resolves paths to guarded routes and drives a
// navigation through the route guard until it commits.
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/prontuario/proamp/internal/core/domain"
)

var (
	ErrUnknownRoute = errors.New("unknown route")
	ErrRedirectLoop = errors.New("too many redirects")
	ErrInvalidTable = errors.New("invalid route table")
)

// Route is one entry of the table. A Route with Redirect set is a static
// alias and carries no guard.
type Route struct {
	Path       string
	Name       domain.RouteName
	Capability domain.Capability
	Redirect   string
}

// Table maps paths and names to routes.
type Table struct {
	routes []Route
	byPath map[string]int
	byName map[domain.RouteName]int
}

// required are the names the guard may redirect to.
var required = []domain.RouteName{
	domain.RouteLogin,
	domain.RouteForcePasswordChange,
	domain.RouteUnauthorized,
	domain.RouteAdminDashboard,
	domain.RouteManagerDashboard,
	domain.RouteHealthDashboard,
}

// NewTable validates routes and indexes them.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{
		byPath: make(map[string]int, len(routes)),
		byName: make(map[domain.RouteName]int, len(routes)),
	}
	for _, r := range routes {
		r.Path = cleanPath(r.Path)
		if _, dup := t.byPath[r.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %s", ErrInvalidTable, r.Path)
		}
		if r.Redirect == "" && r.Name == "" {
			return nil, fmt.Errorf("%w: route %s has neither name nor redirect", ErrInvalidTable, r.Path)
		}
		if r.Name != "" {
			if _, dup := t.byName[r.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidTable, r.Name)
			}
			t.byName[r.Name] = len(t.routes)
		}
		t.byPath[r.Path] = len(t.routes)
		t.routes = append(t.routes, r)
	}

	for _, r := range t.routes {
		if r.Redirect == "" {
			continue
		}
		if _, ok := t.byPath[cleanPath(stripQuery(r.Redirect))]; !ok {
			return nil, fmt.Errorf("%w: %s redirects to unknown path %s", ErrInvalidTable, r.Path, r.Redirect)
		}
	}
	for _, name := range required {
		if _, ok := t.byName[name]; !ok {
			return nil, fmt.Errorf("%w: missing route %s", ErrInvalidTable, name)
		}
	}
	return t, nil
}

// DefaultTable is the application's built-in route table.
func DefaultTable() *Table {
	admin := domain.RequireRoles(domain.RoleAdmin)
	manager := domain.RequireRoles(domain.RoleManager)
	prof := domain.RequireRoles(domain.RoleProfessional)

	t, err := NewTable([]Route{
		{Path: "/", Redirect: "/login"},
		{Path: "/login", Name: domain.RouteLogin, Capability: domain.GuestOnly()},
		{Path: "/force-password-change", Name: domain.RouteForcePasswordChange, Capability: domain.Authenticated()},

		{Path: "/admin", Redirect: "/admin/dashboard"},
		{Path: "/admin/dashboard", Name: domain.RouteAdminDashboard, Capability: admin},
		{Path: "/admin/users", Name: "admin-users", Capability: admin},
		{Path: "/admin/students", Name: "admin-students", Capability: admin},
		{Path: "/admin/reports", Name: "admin-reports", Capability: admin},
		{Path: "/admin/profile", Name: "admin-profile", Capability: admin},

		{Path: "/manager", Redirect: "/manager/dashboard"},
		{Path: "/manager/dashboard", Name: domain.RouteManagerDashboard, Capability: manager},
		{Path: "/manager/team", Name: "manager-team", Capability: manager},
		{Path: "/manager/reports", Name: "manager-reports", Capability: manager},
		{Path: "/manager/profile", Name: "manager-profile", Capability: manager},

		{Path: "/professional", Redirect: "/professional/dashboard"},
		{Path: "/professional/dashboard", Name: domain.RouteHealthDashboard, Capability: prof},
		{Path: "/professional/students", Name: "health-students", Capability: prof},
		{Path: "/professional/records", Name: "health-records", Capability: prof},
		{Path: "/professional/reports", Name: "health-reports", Capability: prof},
		{Path: "/professional/profile", Name: "health-professional-profile", Capability: prof},

		{Path: "/unauthorized", Name: domain.RouteUnauthorized, Capability: domain.Public()},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve turns a full path into the matching route and the intent the
// guard sees. Unknown paths resolve to the public not-found route.
func (t *Table) Resolve(fullPath string) (Route, domain.NavIntent) {
	p := cleanPath(stripQuery(fullPath))
	r, ok := t.lookupPath(p)
	if !ok {
		r = Route{Path: p, Name: domain.RouteNotFound, Capability: domain.Public()}
	}
	return r, domain.NavIntent{Name: r.Name, FullPath: fullPath, Capability: r.Capability}
}

// PathOf renders the path for a named route with query appended.
func (t *Table) PathOf(name domain.RouteName, query map[string]string) (string, error) {
	i, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}
	p := t.routes[i].Path
	if len(query) == 0 {
		return p, nil
	}
	q := url.Values{}
	for k, v := range query {
		q.Set(k, v)
	}
	return p + "?" + q.Encode(), nil
}

// Routes returns the table in declaration order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

func (t *Table) lookupPath(p string) (Route, bool) {
	i, ok := t.byPath[p]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

func stripQuery(full string) string {
	if i := strings.IndexAny(full, "?#"); i >= 0 {
		return full[:i]
	}
	return full
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
