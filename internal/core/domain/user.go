package domain

import "time"

// User is the server-side account record behind an Identity.
type User struct {
	ID                 string         `json:"id"`
	Username           string         `json:"username"`
	Email              string         `json:"email"`
	PasswordHash       string         `json:"-"`
	Role               Role           `json:"role"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	HealthProfile      *HealthProfile `json:"health_profile,omitempty"`
	MustChangePassword bool           `json:"must_change_password"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Identity projects the account onto the client-visible principal. The
// health profile is only exposed for health professionals.
func (u *User) Identity(sessionExpiry string) *Identity {
	id := &Identity{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		MustChangePassword: u.MustChangePassword,
		SessionExpiry:      sessionExpiry,
	}
	if u.Role == RoleProfessional && u.HealthProfile != nil {
		hp := *u.HealthProfile
		id.HealthProfile = &hp
	}
	return id
}

// ServerSession is the backend record a session cookie points at.
type ServerSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expiry reports the mode string sent back to the client on login.
func (s *ServerSession) Expiry() string {
	if s.Persistent {
		return ExpiryPersistent
	}
	return ExpiryBrowserClose
}
