// Package cache keeps service responses in the local store so repeated
// screens do not refetch. Concurrent fetches of one key are collapsed, and
// a stale entry can be served while it is refreshed in the background.
//
// The cache never fails a caller: storage errors are logged and the value
// is fetched as if nothing was cached.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	cacherepo "github.com/dmitrijs2005/pdfxcel/internal/client/repositories/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultMaxStale = time.Hour
)

// FetchFunc produces the encoded value for a key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Options per lookup. Zero TTL means DefaultTTL.
type Options struct {
	TTL time.Duration
	// StaleWhileRevalidate serves an expired entry younger than the max
	// stale age and refreshes it in the background.
	StaleWhileRevalidate bool
	ForceRefresh         bool
}

func (o Options) ttl() time.Duration {
	if o.TTL <= 0 {
		return DefaultTTL
	}
	return o.TTL
}

type Cache struct {
	repo     cacherepo.Repository
	clock    clock.Clock
	log      logging.Logger
	maxStale time.Duration

	group singleflight.Group
	bg    sync.WaitGroup
}

func New(repo cacherepo.Repository, clk clock.Clock, log logging.Logger) *Cache {
	return &Cache{
		repo:     repo,
		clock:    clk,
		log:      log.With("component", "cache"),
		maxStale: DefaultMaxStale,
	}
}

// GetOrFetch returns the cached value for key or calls fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc, opts Options) ([]byte, error) {
	ttl := opts.ttl()

	if !opts.ForceRefresh {
		e, err := c.repo.Get(ctx, key)
		if err != nil {
			c.log.Warn(ctx, "cache read failed", "key", key, "error", err)
		}
		if e != nil {
			age := c.clock.Now().Sub(e.StoredAt)
			if age <= ttl {
				c.log.Debug(ctx, "cache hit", "key", key)
				return e.Value, nil
			}
			if opts.StaleWhileRevalidate && age < c.maxStale {
				c.log.Debug(ctx, "serving stale entry", "key", key, "age", age)
				c.refresh(context.WithoutCancel(ctx), key, fetch, ttl)
				return e.Value, nil
			}
		}
	}

	return c.fetch(ctx, key, fetch, ttl)
}

func (c *Cache) fetch(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) ([]byte, error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug(ctx, "joined in-flight fetch", "key", key)
	}
	return v.([]byte), nil
}

func (c *Cache) refresh(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.fetch(ctx, key, fetch, ttl); err != nil {
			c.log.Warn(ctx, "background refresh failed", "key", key, "error", err)
		}
	}()
}

func (c *Cache) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	now := c.clock.Now()
	e := &models.CacheEntry{Key: key, Value: data, StoredAt: now, ExpiresAt: now.Add(ttl)}
	if err := c.repo.Put(ctx, e); err != nil {
		c.log.Warn(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Wait blocks until background refreshes have finished.
func (c *Cache) Wait() { c.bg.Wait() }

func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.group.Forget(key)
	if err := c.repo.Delete(ctx, key); err != nil {
		c.log.Warn(ctx, "cache invalidate failed", "key", key, "error", err)
	}
}

func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if err := c.repo.DeletePrefix(ctx, prefix); err != nil {
		c.log.Warn(ctx, "cache invalidate failed", "prefix", prefix, "error", err)
	}
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := c.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Fetch is GetOrFetch for JSON-encoded values.
func Fetch[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	raw, err := c.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}, opts)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		// A corrupt entry is dropped and refetched once.
		c.log.Warn(ctx, "dropping undecodable cache entry", "key", key, "error", err)
		c.Invalidate(ctx, key)
		v, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		if raw, err := json.Marshal(v); err == nil {
			c.store(ctx, key, raw, opts.ttl())
		}
		return v, nil
	}
	return out, nil
}
