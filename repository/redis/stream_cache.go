package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/featherlive/backend/domain"
)

// StreamCache keeps the latest stream snapshot in Redis so read-heavy
// endpoints do not hit the primary store on every request. The cache is
// refreshed after every committed mutation and is advisory only.
type StreamCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewStreamCache creates a Redis-backed stream snapshot cache.
func NewStreamCache(client *redislib.Client, ttl time.Duration) *StreamCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StreamCache{
		client: client,
		prefix: "stream:",
		ttl:    ttl,
	}
}

func (c *StreamCache) Get(ctx context.Context, id string) (*domain.Stream, error) {
	result, err := c.client.Get(ctx, c.key(id)).Result()
	if err != nil {
		if err == redislib.Nil {
			return nil, domain.ErrStreamNotFound
		}
		return nil, err
	}

	var stream domain.Stream
	if err := json.Unmarshal([]byte(result), &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

func (c *StreamCache) Set(ctx context.Context, stream *domain.Stream) error {
	if stream == nil || stream.ID == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(stream)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(stream.ID), payload, c.ttl).Err()
}

func (c *StreamCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *StreamCache) key(id string) string {
	return fmt.Sprintf("%s%s", c.prefix, id)
}
