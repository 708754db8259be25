package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// StateKey holds the latest lottery snapshot as JSON.
const StateKey = "lottery:state"

// StateCache implements domain.StateCache. The snapshot has no TTL: a
// pending randomness request must survive any length of downtime.
type StateCache struct {
	rdb *redis.Client
	key string
}

// NewStateCache creates a StateCache storing under StateKey.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying(), key: StateKey}
}

// Save overwrites the stored snapshot.
func (s *StateCache) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot or domain.ErrNotFound.
func (s *StateCache) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: load snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

var _ domain.StateCache = (*StateCache)(nil)
