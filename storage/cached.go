package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-clientcore/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const cacheKeyPrefix = "go-clientcore::storage::v1"

type cachedValue struct {
	Value string
	Found bool
}

// Cached is a read-through cache in front of a slower backend. Writes go to
// the base backend first and then invalidate the cached key.
type Cached struct {
	base  core.StorageBackend
	cache repositorycache.CacheService
}

func NewCached(base core.StorageBackend, cacheService repositorycache.CacheService) (*Cached, error) {
	if base == nil {
		return nil, fmt.Errorf("storage: base backend is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("storage: cache service is required")
	}
	return &Cached{base: base, cache: cacheService}, nil
}

// CacheKey returns the cache entry name for a storage key:
// go-clientcore::storage::v1::<escaped key>.
func CacheKey(key string) string {
	return strings.Join([]string{cacheKeyPrefix, url.PathEscape(key)}, "::")
}

func (c *Cached) Get(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return "", false, fmt.Errorf("storage: cached backend is not configured")
	}
	entry, err := repositorycache.GetOrFetch(ctx, c.cache, CacheKey(key), func(ctx context.Context) (cachedValue, error) {
		value, found, fetchErr := c.base.Get(ctx, key)
		if fetchErr != nil {
			return cachedValue{}, fetchErr
		}
		return cachedValue{Value: value, Found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	return entry.Value, entry.Found, nil
}

func (c *Cached) Set(ctx context.Context, key string, value string) error {
	if c == nil || c.base == nil || c.cache == nil {
		return fmt.Errorf("storage: cached backend is not configured")
	}
	if err := c.base.Set(ctx, key, value); err != nil {
		return err
	}
	return c.cache.Delete(ctx, CacheKey(key))
}

func (c *Cached) Remove(ctx context.Context, key string) error {
	if c == nil || c.base == nil || c.cache == nil {
		return fmt.Errorf("storage: cached backend is not configured")
	}
	if err := c.base.Remove(ctx, key); err != nil {
		return err
	}
	return c.cache.Delete(ctx, CacheKey(key))
}

func (c *Cached) Clear(ctx context.Context) error {
	if c == nil || c.base == nil || c.cache == nil {
		return fmt.Errorf("storage: cached backend is not configured")
	}
	keys, err := c.base.Keys(ctx)
	if err != nil {
		return err
	}
	if err := c.base.Clear(ctx); err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.cache.Delete(ctx, CacheKey(key)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cached) Keys(ctx context.Context) ([]string, error) {
	if c == nil || c.base == nil {
		return nil, fmt.Errorf("storage: cached backend is not configured")
	}
	return c.base.Keys(ctx)
}

var _ core.StorageBackend = (*Cached)(nil)
