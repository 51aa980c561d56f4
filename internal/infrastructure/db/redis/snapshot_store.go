package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prontuario/proamp/internal/core/domain"
)

const DefaultSnapshotKey = "proamp:session:identity"

// SnapshotStore keeps the client's cached identity under a single key, so
// several processes of one user can share it.
type SnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSnapshotStore stores under key (DefaultSnapshotKey when empty). A
// positive ttl bounds how long an unrefreshed snapshot survives.
func NewSnapshotStore(client *redis.Client, key string, ttl time.Duration) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{client: client, key: key, ttl: ttl}
}

func (s *SnapshotStore) Load(ctx context.Context) (*domain.Identity, error) {
	buf, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var id domain.Identity
	if err := json.Unmarshal(buf, &id); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &id, nil
}

func (s *SnapshotStore) Persist(ctx context.Context, id *domain.Identity) error {
	if id == nil {
		return s.client.Del(ctx, s.key).Err()
	}
	buf, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key, buf, s.ttl).Err()
}
