// Package cache implements the package cache: a content-addressed-by-URL
// store of fetched script bodies with single-flight fetch coalescing and a
// mark-and-sweep "flush unused" phase, grounded on the singleflight-backed
// loader pattern used for de-duplicating concurrent cache misses.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jrjohn/arcana-ssr/internal/observability"
	"github.com/jrjohn/arcana-ssr/internal/render/stats"
)

const cacheMetricName = "packages"

// Package is one fetched JavaScript file. Identity is the URL; content is
// immutable once fetched, lastUsed mutates on every cache hit.
type Package struct {
	URL       string
	Content   []byte
	FetchedAt time.Time
	LastUsed  time.Time
	SizeBytes int
}

// entry holds a Ready package. There is no separate FETCHING/FAILED state
// in the map: an in-flight fetch is represented purely by the singleflight
// group, and a failed fetch is never stored, so the next request for that
// URL simply retries — matching the spec's "FAILED entries are not
// retained beyond the waking of their current waiters."
type entry struct {
	pkg Package
}

// FetchFunc performs the actual network fetch for a URL. It is supplied by
// the caller (the Fetcher) so the cache stays decoupled from HTTP details.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// Cache maps URL to its Ready entry. At most one fetch per URL is in flight
// at any time; concurrent callers for the same URL share the outcome of a
// single network fetch via singleflight.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	metrics *observability.MetricsProvider
}

// New creates an empty Cache. mp may be nil, in which case cache metrics are
// skipped.
func New(mp *observability.MetricsProvider) *Cache {
	return &Cache{entries: make(map[string]*entry), metrics: mp}
}

// GetOrFetch returns the content for url, fetching it via fetch if it is
// not already cached. fromCache reports whether the content came from a
// Ready entry without a new network fetch. stats.PackageFetches is
// incremented from inside the singleflight closure, so it fires exactly
// once per real network fetch regardless of how many callers coalesce onto
// it — singleflight's "shared" return value is identical for every caller
// waiting on the same key, including the one that ends up executing it, so
// it cannot be used to single out the initiating caller.
func (c *Cache) GetOrFetch(ctx context.Context, url string, req *stats.Request, fetch FetchFunc) ([]byte, bool, error) {
	c.mu.Lock()
	// A FlushAll during the fetch swaps c.entries for a new map, so storing
	// into the map captured here drops results of fetches begun pre-flush.
	entries := c.entries
	if e, ok := c.entries[url]; ok {
		e.pkg.LastUsed = time.Now()
		c.mu.Unlock()
		if req != nil {
			req.IncFromCache()
		}
		if c.metrics != nil {
			c.metrics.RecordCacheHit(cacheMetricName)
		}
		return e.pkg.Content, true, nil
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCacheMiss(cacheMetricName)
	}

	content, err, _ := c.group.Do(url, func() (any, error) {
		body, ferr := fetch(ctx, url)
		if ferr != nil {
			return nil, ferr
		}
		if req != nil {
			req.IncPackageFetches()
		}
		return body, nil
	})
	if err != nil {
		return nil, false, err
	}

	body := content.([]byte)
	now := time.Now()
	c.mu.Lock()
	entries[url] = &entry{
		pkg: Package{
			URL:       url,
			Content:   body,
			FetchedAt: now,
			LastUsed:  now,
			SizeBytes: len(body),
		},
	}
	c.mu.Unlock()

	return body, false, nil
}

// FlushAll drops every cached entry. Any in-flight fetches started before
// the flush are allowed to complete; their waiters still receive the
// outcome, but the result is not retained in the cache afterward.
func (c *Cache) FlushAll() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// FlushUnused drops entries whose lastUsed predates cutoff. The
// orchestrator calls it at the start of every render with a cutoff of now
// minus its five-minute retention, and the housekeeping tick calls it with
// now minus the sweep interval; entries used inside that window survive
// even when the current render does not reference them.
func (c *Cache) FlushUnused(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url, e := range c.entries {
		if e.pkg.LastUsed.Before(cutoff) {
			delete(c.entries, url)
		}
	}
}

// Size returns the sum of sizeBytes across all cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, e := range c.entries {
		total += e.pkg.SizeBytes
	}
	return total
}
