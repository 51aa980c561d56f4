package ports

import (
	"context"

	"github.com/prontuario/proamp/internal/core/domain"
)

// UserRepository defines persistence of accounts for the auth server.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindByRole lists accounts with role ordered by first name.
	FindByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
