package navigation

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/prontuario/proamp/internal/core/domain"
)

// tableFile is the on-disk form of a route table:
//
//	[[route]]
//	path   = "/admin/dashboard"
//	name   = "admin-dashboard"
//	access = "roles"
//	roles  = ["admin"]
//
//	[[route]]
//	path     = "/admin"
//	redirect = "/admin/dashboard"
type tableFile struct {
	Routes []routeEntry `toml:"route"`
}

type routeEntry struct {
	Path     string   `toml:"path"`
	Name     string   `toml:"name"`
	Access   string   `toml:"access"`
	Roles    []string `toml:"roles"`
	Redirect string   `toml:"redirect"`
}

// LoadTable reads a TOML route table from path.
func LoadTable(path string) (*Table, error) {
	var f tableFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("read route table %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s in %s", ErrInvalidTable, undecoded[0], path)
	}
	return f.table()
}

// ParseTable decodes a TOML route table held in memory.
func ParseTable(data string) (*Table, error) {
	var f tableFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}
	return f.table()
}

func (f *tableFile) table() (*Table, error) {
	routes := make([]Route, 0, len(f.Routes))
	for _, e := range f.Routes {
		c, err := e.capability()
		if err != nil {
			return nil, err
		}
		routes = append(routes, Route{
			Path:       e.Path,
			Name:       domain.RouteName(e.Name),
			Capability: c,
			Redirect:   e.Redirect,
		})
	}
	return NewTable(routes)
}

func (e routeEntry) capability() (domain.Capability, error) {
	switch domain.CapabilityKind(e.Access) {
	case "", domain.CapNone:
		return domain.Public(), nil
	case domain.CapAuthenticated:
		return domain.Authenticated(), nil
	case domain.CapGuestOnly:
		return domain.GuestOnly(), nil
	case domain.CapRoles:
		if len(e.Roles) == 0 {
			return domain.Capability{}, fmt.Errorf("%w: route %s requires roles but lists none", ErrInvalidTable, e.Path)
		}
		roles := make([]domain.Role, 0, len(e.Roles))
		for _, r := range e.Roles {
			role := domain.Role(r)
			if !role.Known() {
				return domain.Capability{}, fmt.Errorf("%w: route %s names unknown role %q", ErrInvalidTable, e.Path, r)
			}
			roles = append(roles, role)
		}
		return domain.RequireRoles(roles...), nil
	}
	return domain.Capability{}, fmt.Errorf("%w: route %s has unknown access %q", ErrInvalidTable, e.Path, e.Access)
}
