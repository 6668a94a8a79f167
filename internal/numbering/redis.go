package numbering

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSequencer draws sequence values from an INCR counter per year.
// INCR is atomic on the server, so concurrent creators never share a value.
type RedisSequencer struct {
	client *redis.Client
	prefix string
}

// NewRedisSequencer creates a sequencer using keys "<prefix>:<year>"
func NewRedisSequencer(client *redis.Client, prefix string) *RedisSequencer {
	if prefix == "" {
		prefix = "orderno"
	}
	return &RedisSequencer{client: client, prefix: prefix}
}

// Next increments and returns the counter for year
func (s *RedisSequencer) Next(ctx context.Context, year int) (int64, error) {
	seq, err := s.client.Incr(ctx, s.key(year)).Result()

	if err != nil {
		return 0, fmt.Errorf("numbering: incr %s: %w", s.key(year), err)
	}

	return seq, nil
}

func (s *RedisSequencer) key(year int) string {
	return fmt.Sprintf("%s:%d", s.prefix, year)
}
