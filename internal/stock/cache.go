package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "stock:availability:version"

// Availability is the cached projection served to dashboard reads.
type Availability struct {
	ItemID    int64   `json:"stockItemId"`
	Total     float64 `json:"quantityTotal"`
	Processed float64 `json:"quantityProcessed"`
	Available float64 `json:"available"`
	Unit      string  `json:"unit"`
}

// AvailabilityCache wraps Redis based caching with versioning controls.
// Every committed mutation bumps the version, so reads after a commit never
// observe a stale availability figure.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewAvailabilityCache instantiates the cache helper.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *AvailabilityCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached entry by advancing the version.
func (c *AvailabilityCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *AvailabilityCache) key(ctx context.Context, itemID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stock:availability:v%d:%d", ver, itemID), nil
}

// Get returns the cached availability when present.
func (c *AvailabilityCache) Get(ctx context.Context, itemID int64) (Availability, bool, error) {
	if c == nil || c.client == nil {
		return Availability{}, false, nil
	}
	key, err := c.key(ctx, itemID)
	if err != nil {
		return Availability{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Availability{}, false, nil
	}
	if err != nil {
		return Availability{}, false, err
	}
	var av Availability
	if err := json.Unmarshal(payload, &av); err != nil {
		return Availability{}, false, err
	}
	return av, true, nil
}

// GetOrFill serves from cache, collapsing concurrent fills for the same item
// into one loader call.
func (c *AvailabilityCache) GetOrFill(ctx context.Context, itemID int64, fill func(context.Context) (Availability, error)) (Availability, error) {
	if c == nil || c.client == nil {
		return fill(ctx)
	}
	if av, ok, err := c.Get(ctx, itemID); err == nil && ok {
		return av, nil
	}
	value, err, _ := c.group.Do(fmt.Sprintf("%d", itemID), func() (any, error) {
		av, err := fill(ctx)
		if err != nil {
			return Availability{}, err
		}
		if err := c.set(ctx, itemID, av); err != nil {
			return av, nil
		}
		return av, nil
	})
	if err != nil {
		return Availability{}, err
	}
	return value.(Availability), nil
}

func (c *AvailabilityCache) set(ctx context.Context, itemID int64, av Availability) error {
	key, err := c.key(ctx, itemID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(av)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
