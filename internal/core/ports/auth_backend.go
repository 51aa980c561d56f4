package ports

import (
	"context"

	"github.com/prontuario/proamp/internal/core/domain"
)

// LoginInput carries the credentials posted to the backend.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

// SessionCheck is the backend's answer to a session verification. Fields
// holds only what the endpoint echoed.
type SessionCheck struct {
	Authenticated bool
	Fields        domain.IdentityPatch
}

// SetPasswordInput is the password-change form. CurrentPassword may be empty
// while a forced change is pending.
type SetPasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// ProfilePatch is the subset of the identity a user may edit on themselves.
type ProfilePatch struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// AuthBackend is the network boundary consumed by the session core.
//
// Login returns domain.ErrInvalidCredentials for rejected credentials.
// CheckSession reports an unauthenticated answer through SessionCheck
// rather than an error; an error means the backend could not be asked.
type AuthBackend interface {
	Login(ctx context.Context, in LoginInput) (*domain.Identity, error)
	Logout(ctx context.Context) error
	CheckSession(ctx context.Context) (*SessionCheck, error)
	SetPassword(ctx context.Context, in SetPasswordInput) error
	GetProfile(ctx context.Context) (domain.IdentityPatch, error)
	PatchProfile(ctx context.Context, patch ProfilePatch) (domain.IdentityPatch, error)
}
