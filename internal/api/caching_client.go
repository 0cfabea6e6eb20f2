package api

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/logging"
)

const (
	// DefaultCacheSize is the entry bound used when CacheConfig.Size is zero.
	// A negative Size disables the in-memory tier.
	DefaultCacheSize = 512
	// DefaultCacheTTL is the entry lifetime used when CacheConfig.TTL is zero.
	DefaultCacheTTL = 10 * time.Minute
)

// BodyStore is a persistent second tier behind the in-memory cache.
type BodyStore interface {
	// Load returns the stored response for url if it is younger than maxAge.
	Load(ctx context.Context, url string, maxAge time.Duration) (*domain.RawResponse, bool, error)
	Save(ctx context.Context, resp *domain.RawResponse) error
}

// CacheConfig configures a CachingTransport.
type CacheConfig struct {
	Size  int
	TTL   time.Duration
	Store BodyStore // optional

	// StoreMaxAge bounds how old a stored response may be. Zero means TTL.
	StoreMaxAge time.Duration
}

// CachingTransport wraps a Fetcher with a bounded LRU cache with per-entry TTL.
// Only successful responses are cached. Concurrent misses on the same URL share
// one upstream request, which runs detached from any single caller's context;
// each caller still stops waiting when its own context is done.
type CachingTransport struct {
	next        Fetcher
	entries     *expirable.LRU[string, *domain.RawResponse]
	inflight    singleflight.Group
	store       BodyStore
	storeMaxAge time.Duration
	logger      *log.Logger

	hits      atomic.Int64
	storeHits atomic.Int64
	misses    atomic.Int64
}

// NewCachingTransport creates a new caching wrapper around next.
func NewCachingTransport(next Fetcher, cfg CacheConfig, logger *log.Logger) *CachingTransport {
	if cfg.Size == 0 {
		cfg.Size = DefaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.StoreMaxAge <= 0 {
		cfg.StoreMaxAge = cfg.TTL
	}
	c := &CachingTransport{
		next:        next,
		store:       cfg.Store,
		storeMaxAge: cfg.StoreMaxAge,
		logger:      logging.OrDiscard(logger),
	}
	if cfg.Size > 0 {
		c.entries = expirable.NewLRU[string, *domain.RawResponse](cfg.Size, nil, cfg.TTL)
	}
	return c
}

// WithCache is the Middleware form of NewCachingTransport.
func WithCache(cfg CacheConfig, logger *log.Logger) Middleware {
	return func(next Fetcher) Fetcher { return NewCachingTransport(next, cfg, logger) }
}

// Fetch serves url from memory, then from the store, then from upstream.
func (c *CachingTransport) Fetch(ctx context.Context, url string) (*domain.RawResponse, error) {
	if c.entries != nil {
		if resp, ok := c.entries.Get(url); ok {
			c.hits.Add(1)
			c.logger.Debug("cache hit", "url", url)
			return clone(resp), nil
		}
	}

	if c.store != nil {
		resp, ok, err := c.store.Load(ctx, url, c.storeMaxAge)
		if err != nil {
			c.logger.Warn("store load failed", "url", url, "err", err)
		} else if ok {
			c.storeHits.Add(1)
			c.remember(url, resp)
			c.logger.Debug("store hit", "url", url)
			return clone(resp), nil
		}
	}

	c.misses.Add(1)
	// The shared fetch must outlive a caller that gives up; the transport's
	// HTTP client timeout still bounds it.
	detached := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(url, func() (interface{}, error) {
		resp, err := c.next.Fetch(detached, url)
		if err != nil {
			return nil, err
		}
		c.remember(url, resp)
		if c.store != nil {
			if err := c.store.Save(detached, resp); err != nil {
				c.logger.Warn("store save failed", "url", url, "err", err)
			}
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("shared in-flight fetch", "url", url)
		}
		return clone(res.Val.(*domain.RawResponse)), nil
	}
}

func (c *CachingTransport) remember(url string, resp *domain.RawResponse) {
	if c.entries != nil {
		c.entries.Add(url, resp)
	}
}

// Invalidate removes one URL from the in-memory tier.
func (c *CachingTransport) Invalidate(url string) bool {
	if c.entries == nil {
		return false
	}
	return c.entries.Remove(url)
}

// InvalidatePrefix removes every cached URL starting with prefix and returns
// how many were removed.
func (c *CachingTransport) InvalidatePrefix(prefix string) int {
	if c.entries == nil {
		return 0
	}
	count := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) && c.entries.Remove(key) {
			count++
		}
	}
	if count > 0 {
		c.logger.Debug("invalidated", "prefix", prefix, "count", count)
	}
	return count
}

// Purge empties the in-memory tier and returns how many entries it held.
func (c *CachingTransport) Purge() int {
	if c.entries == nil {
		return 0
	}
	n := c.entries.Len()
	c.entries.Purge()
	return n
}

// Stats returns cache counters.
func (c *CachingTransport) Stats() CacheStats {
	var entries int
	if c.entries != nil {
		entries = c.entries.Len()
	}
	return CacheStats{
		Entries:   entries,
		Hits:      c.hits.Load(),
		StoreHits: c.storeHits.Load(),
		Misses:    c.misses.Load(),
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	StoreHits int64 `json:"store_hits"`
	Misses    int64 `json:"misses"`
}

func clone(r *domain.RawResponse) *domain.RawResponse {
	cp := *r
	return &cp
}
