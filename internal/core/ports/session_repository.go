package ports

import (
	"context"

	"github.com/prontuario/proamp/internal/core/domain"
)

// SessionRepository stores server-side sessions until they expire.
//
// Get returns domain.ErrSessionExpired for unknown or expired ids.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.ServerSession) error
	Get(ctx context.Context, id string) (*domain.ServerSession, error)
	Delete(ctx context.Context, id string) error
}
