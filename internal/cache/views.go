package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewDeduper decides whether a view of a resource by a client should be counted.
type ViewDeduper interface {
	FirstView(ctx context.Context, resource, clientKey string) (bool, error)
}

// RedisViewDeduper counts at most one view per (resource, client) per window,
// using SET NX with an expiry.
type RedisViewDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisViewDeduper(client *redis.Client, window time.Duration) *RedisViewDeduper {
	return &RedisViewDeduper{client: client, window: window}
}

func viewKey(resource, clientKey string) string {
	return fmt.Sprintf("view:%s:%s", resource, clientKey)
}

// FirstView returns true when no view was recorded for the pair within the window.
func (d *RedisViewDeduper) FirstView(ctx context.Context, resource, clientKey string) (bool, error) {
	if d == nil || d.client == nil || d.window <= 0 {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, viewKey(resource, clientKey), 1, d.window).Result()
	if err != nil {
		return true, fmt.Errorf("view dedup check failed: %w", err)
	}
	return ok, nil
}
