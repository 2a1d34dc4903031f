// Package taxes caches active tax configurations. Tax configurations are
// read-only inputs to the calculation engine and are never consulted during
// conversion, which works on snapshots only.
package taxes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/cotiza-erp/cotiza-erp/internal/documents"
)

const cacheKey = "taxes:active"

// Cache wraps the store's tax lookups with a Redis TTL cache. Concurrent
// cache misses collapse into a single store read.
type Cache struct {
	client *redis.Client
	store  documents.Store
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache builds the cache. A nil client degrades to direct store reads.
func NewCache(client *redis.Client, store documents.Store, ttl time.Duration) *Cache {
	return &Cache{client: client, store: store, ttl: ttl}
}

// ActiveConfigs returns every active tax configuration.
func (c *Cache) ActiveConfigs(ctx context.Context) ([]documents.TaxConfiguration, error) {
	if c.client == nil {
		return c.store.ListActiveTaxConfigs(ctx)
	}

	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var configs []documents.TaxConfiguration
		if err := json.Unmarshal(raw, &configs); err == nil {
			return configs, nil
		}
		// Unreadable payload; fall through and repopulate.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("taxes: cache read: %w", err)
	}

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		configs, err := c.store.ListActiveTaxConfigs(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(configs)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("taxes: cache write: %w", err)
		}
		return configs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]documents.TaxConfiguration), nil
}

// Invalidate drops the cached set after a configuration change.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey).Err()
}
