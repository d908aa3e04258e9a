package redis

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

// DedupStore marks externally delivered events as seen so redelivered
// webhooks are acknowledged without re-applying their side effects.
type DedupStore struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewDedupStore creates a Redis-backed idempotency marker store.
func NewDedupStore(client *redislib.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupStore{
		client: client,
		prefix: "dedup:",
		ttl:    ttl,
	}
}

// MarkOnce returns true when key was not seen before. The check and the mark
// are one atomic SETNX, so concurrent redeliveries cannot both pass.
func (d *DedupStore) MarkOnce(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
}

// Unmark releases a marked key after a failed apply so the next redelivery
// is processed instead of dropped.
func (d *DedupStore) Unmark(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}
