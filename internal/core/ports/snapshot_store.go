package ports

import (
	"context"

	"github.com/prontuario/proamp/internal/core/domain"
)

// SnapshotStore persists the cached identity across process restarts.
//
// Persist with a nil identity clears the snapshot. Load returns (nil, nil)
// when nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Identity, error)
	Persist(ctx context.Context, identity *domain.Identity) error
}
