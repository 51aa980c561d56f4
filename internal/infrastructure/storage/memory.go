package storage

import (
	"context"
	"sync"

	"github.com/prontuario/proamp/internal/core/domain"
)

// MemoryStore keeps the snapshot for the lifetime of the process only.
type MemoryStore struct {
	mu       sync.Mutex
	identity *domain.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone(), nil
}

func (s *MemoryStore) Persist(_ context.Context, id *domain.Identity) error {
	s.mu.Lock()
	s.identity = id.Clone()
	s.mu.Unlock()
	return nil
}
