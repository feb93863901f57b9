package sidechannel

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChannel stores catalog snapshots as plain string values under the
// well-known key the caller passes to Fetch/Store (e.g. "mgr:skills:all").
// It does not derive key names itself; the persistence Store passes the key
// it was configured with through persistence.WithSideChannel.
type RedisChannel struct {
	client *redis.Client
}

// NewRedisChannel wraps an existing *redis.Client. The caller owns the
// client's lifecycle (construction, auth, Close).
func NewRedisChannel(client *redis.Client) *RedisChannel {
	return &RedisChannel{client: client}
}

func (c *RedisChannel) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sidechannel: redis get %s: %w", key, err)
	}
	return data, nil
}

func (c *RedisChannel) Store(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("sidechannel: redis set %s: %w", key, err)
	}
	return nil
}
