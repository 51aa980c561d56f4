package domain

// Role is the authorization level carried by an Identity.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleManager      Role = "manager"
	RoleProfessional Role = "health_prof"
)

// Known reports whether r is one of the roles the client routes for.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleProfessional:
		return true
	}
	return false
}

// Session expiry modes reported by the backend on login.
const (
	ExpiryPersistent   = "persistent"
	ExpiryBrowserClose = "browser_close"
)

// HealthProfile is present only for health professionals.
type HealthProfile struct {
	Specialty     string `json:"specialty"`
	CouncilNumber string `json:"council_number"`
}

// Identity is the authenticated principal held client-side.
//
// A present Identity always carries a Role. Callers receive copies; the
// SessionStore owns the canonical value.
type Identity struct {
	ID                 string         `json:"id"`
	Email              string         `json:"email"`
	Role               Role           `json:"role"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	HealthProfile      *HealthProfile `json:"health_profile,omitempty"`
	MustChangePassword bool           `json:"must_change_password"`
	SessionExpiry      string         `json:"session_expiry,omitempty"`
}

// Clone returns a deep copy of the identity. A nil receiver yields nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.HealthProfile != nil {
		hp := *i.HealthProfile
		c.HealthProfile = &hp
	}
	return &c
}

// Valid reports whether the identity can back an authenticated session.
func (i *Identity) Valid() bool {
	return i != nil && i.ID != "" && i.Role != ""
}

// IdentityPatch is a partial identity. Nil fields are left untouched by Merge.
type IdentityPatch struct {
	ID                 *string
	Email              *string
	Role               *Role
	FirstName          *string
	LastName           *string
	HealthProfile      *HealthProfile
	MustChangePassword *bool
	SessionExpiry      *string
}

// Merge applies the non-nil fields of p onto a copy of i and returns it.
// Merging onto a nil identity starts from the zero value.
func (i *Identity) Merge(p IdentityPatch) *Identity {
	out := i.Clone()
	if out == nil {
		out = &Identity{}
	}
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Role != nil {
		out.Role = *p.Role
	}
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.HealthProfile != nil {
		hp := *p.HealthProfile
		out.HealthProfile = &hp
	}
	if p.MustChangePassword != nil {
		out.MustChangePassword = *p.MustChangePassword
	}
	if p.SessionExpiry != nil {
		out.SessionExpiry = *p.SessionExpiry
	}
	return out
}

// SessionState is a point-in-time view of the session store.
type SessionState struct {
	Identity  *Identity
	IsLoading bool
	LastError string
}

// IsAuthenticated holds exactly when an identity is present.
func (s SessionState) IsAuthenticated() bool {
	return s.Identity != nil
}

// Role returns the current role, or "" when unauthenticated.
func (s SessionState) Role() Role {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

// MustChangePassword reports whether a forced password change is pending.
func (s SessionState) MustChangePassword() bool {
	return s.Identity != nil && s.Identity.MustChangePassword
}
