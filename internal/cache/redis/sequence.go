package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// Sequence implements domain.Sequence with INCR, so the first value handed
// out for a name is 1.
type Sequence struct {
	rdb *redis.Client
}

// NewSequence creates a Sequence backed by the given Client.
func NewSequence(c *Client) *Sequence {
	return &Sequence{rdb: c.Underlying()}
}

// Next returns the next value of the named counter.
func (s *Sequence) Next(ctx context.Context, name string) (int64, error) {
	n, err := s.rdb.Incr(ctx, "seq:"+name).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: next %s: %w", name, err)
	}
	return n, nil
}

var _ domain.Sequence = (*Sequence)(nil)
