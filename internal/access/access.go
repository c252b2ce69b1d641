package access

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codebyanand/streamgate/internal/logging"
)

// CheckFunc is the entitlement source of truth consulted on cache miss.
type CheckFunc func(ctx context.Context, userID, assetID string) (bool, error)

// Cache is a read-through entitlement cache. A playback session issues
// 50-200 segment requests; caching the yes/no answer turns O(n) source
// lookups into O(1). The cache is a performance layer only: correctness
// always falls back to the CheckFunc.
type Cache struct {
	client *redis.Client
	check  CheckFunc
	ttl    time.Duration
	log    *logging.Logger
}

// NewCache creates an access cache backed by Redis
func NewCache(client *redis.Client, check CheckFunc, ttl time.Duration, log *logging.Logger) *Cache {
	return &Cache{
		client: client,
		check:  check,
		ttl:    ttl,
		log:    log,
	}
}

func cacheKey(userID, assetID string) string {
	return fmt.Sprintf("access:%s:%s", userID, assetID)
}

// HasAccess reports whether a user may stream an asset. Cache hits are
// served from Redis; misses consult the source of truth and populate the
// cache. A Redis outage degrades to a direct source-of-truth call and
// caches nothing.
func (c *Cache) HasAccess(ctx context.Context, userID, assetID string) (bool, error) {
	key := cacheKey(userID, assetID)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}
	if err != redis.Nil {
		c.log.WithError(err).Warn("Access cache unavailable, falling back to source of truth")
		return c.check(ctx, userID, assetID)
	}

	allowed, err := c.check(ctx, userID, assetID)
	if err != nil {
		return false, fmt.Errorf("entitlement check failed: %w", err)
	}

	value := "0"
	if allowed {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("Failed to populate access cache")
	}

	return allowed, nil
}

// Invalidate drops the cached entitlement for one user-asset pair. Use
// when access rights change mid-session.
func (c *Cache) Invalidate(ctx context.Context, userID, assetID string) error {
	return c.client.Del(ctx, cacheKey(userID, assetID)).Err()
}

// InvalidateUser drops every cached entitlement for a user, typically on
// logout or a global permission change.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("access:%s:*", userID)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// InvalidateAsset drops every cached entitlement for an asset, used on
// asset deletion.
func (c *Cache) InvalidateAsset(ctx context.Context, assetID string) error {
	pattern := fmt.Sprintf("access:*:%s", assetID)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}
