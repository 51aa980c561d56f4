package ports

import (
	"context"

	"github.com/prontuario/proamp/internal/core/domain"
)

// ServerLoginResult is what a successful server-side login produces.
type ServerLoginResult struct {
	User    *domain.User
	Session *domain.ServerSession
	// Token is the signed cookie value referencing Session.
	Token string
}

// AuthService is the server-side use-case surface behind the HTTP handlers.
type AuthService interface {
	Login(ctx context.Context, email, password string, rememberMe bool) (*ServerLoginResult, error)
	Logout(ctx context.Context, token string) error
	// Authenticate resolves a session cookie to its user. Any failure is
	// reported as domain.ErrSessionExpired.
	Authenticate(ctx context.Context, token string) (*domain.User, *domain.ServerSession, error)
	UpdateProfile(ctx context.Context, user *domain.User, patch ProfilePatch) (*domain.User, error)
	SetPassword(ctx context.Context, user *domain.User, in SetPasswordInput) error
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}
