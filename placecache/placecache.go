// Package placecache caches resolved Google Place IDs so the Places
// fallback adapter does not repeat text-search lookups on every sync.
package placecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "review-sync:place:"

// Cache maps an owner identifier to a resolved Place ID. Get returns an
// empty string on a miss; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, ownerID string) (string, error)
	Set(ctx context.Context, ownerID, placeID string, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

// NewRedis returns a Redis-backed cache.
func NewRedis(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, ownerID string) (string, error) {
	placeID, err := c.client.Get(ctx, keyPrefix+ownerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}

		return "", err
	}

	return placeID, nil
}

func (c *redisCache) Set(ctx context.Context, ownerID, placeID string, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+ownerID, placeID, ttl).Err()
}

type memoryEntry struct {
	placeID   string
	expiresAt time.Time
}

type memoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// NewMemory returns a process-local cache used when no Redis is configured.
func NewMemory() Cache {
	return &memoryCache{items: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, ownerID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.items[ownerID]
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return "", nil
	}

	return entry.placeID, nil
}

func (c *memoryCache) Set(_ context.Context, ownerID, placeID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{placeID: placeID}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.items[ownerID] = entry

	return nil
}
