package web

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/leonardcser/cache-replay/internal/logger"
	"github.com/leonardcser/cache-replay/internal/store"
)

// DefaultPageTTL is how long a fetched page stays cached.
const DefaultPageTTL = 10 * time.Second

func countKey(rawURL string) string  { return "count:" + rawURL }
func cachedKey(rawURL string) string { return "cached:" + rawURL }

type fetchFunc func(ctx context.Context, rawURL string) (string, error)

// PageCache memoizes fetched pages in a store.KV for a fixed TTL and counts
// every access per URL. Access counters never expire.
type PageCache struct {
	kv    store.KV
	ttl   time.Duration
	fetch fetchFunc
}

// PageOption configures a PageCache built by NewPageCache.
type PageOption func(*PageCache)

// WithTTL sets how long fetched pages are cached.
func WithTTL(ttl time.Duration) PageOption {
	return func(p *PageCache) { p.ttl = ttl }
}

// NewPageCache wraps fetcher with access counting and a DefaultPageTTL cache in kv.
func NewPageCache(kv store.KV, fetcher TextFetcher, opts ...PageOption) *PageCache {
	p := &PageCache{kv: kv, ttl: DefaultPageTTL}
	for _, opt := range opts {
		opt(p)
	}
	p.fetch = p.countAccess(p.cachePage(fetcher.FetchText))
	return p
}

// Fetch counts the access, then returns the cached page for rawURL or
// fetches and caches it. Network and store errors are returned unchanged and
// a failed fetch caches nothing.
func (p *PageCache) Fetch(ctx context.Context, rawURL string) (string, error) {
	return p.fetch(ctx, rawURL)
}

// Count returns how many times rawURL was requested through Fetch.
func (p *PageCache) Count(ctx context.Context, rawURL string) (int64, error) {
	raw, err := p.kv.Get(ctx, countKey(rawURL))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// TTL returns the configured page lifetime.
func (p *PageCache) TTL() time.Duration { return p.ttl }

func (p *PageCache) countAccess(next fetchFunc) fetchFunc {
	return func(ctx context.Context, rawURL string) (string, error) {
		if _, err := p.kv.Incr(ctx, countKey(rawURL)); err != nil {
			return "", err
		}
		return next(ctx, rawURL)
	}
}

func (p *PageCache) cachePage(next fetchFunc) fetchFunc {
	return func(ctx context.Context, rawURL string) (string, error) {
		key := cachedKey(rawURL)
		cached, err := p.kv.Get(ctx, key)
		if err == nil {
			logger.Debugf("page cache hit %s", rawURL)
			return string(cached), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		page, err := next(ctx, rawURL)
		if err != nil {
			return "", err
		}
		if err := p.kv.SetEx(ctx, key, []byte(page), p.ttl); err != nil {
			return "", err
		}
		logger.Debugf("page cache fill %s (%d bytes, ttl %s)", rawURL, len(page), p.ttl)
		return page, nil
	}
}
