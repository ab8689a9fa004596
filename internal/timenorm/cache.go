package timenorm

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 1000
	defaultCacheTTL     = 60 * time.Second
)

// cacheEntry holds resolved spans along with the timestamp they were stored.
type cacheEntry struct {
	spans    []Span
	storedAt time.Time
}

// spanCache keeps recently resolved texts so N items of one batch referring
// to the same expression cost one service call. Keyed by
// (text, locale, timezone, reference); bounded LRU with a short TTL.
type spanCache struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

func newSpanCache(maxSize int, ttl time.Duration) *spanCache {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](maxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return nil
	}
	return &spanCache{cache: cache, ttl: ttl}
}

func cacheKey(text, locale, timezone string, reference time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", text, locale, timezone, reference.Format(time.RFC3339))
}

func (c *spanCache) get(key string) ([]Span, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) >= c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.spans, true
}

func (c *spanCache) put(key string, spans []Span) {
	if c == nil {
		return
	}
	c.cache.Add(key, cacheEntry{spans: spans, storedAt: time.Now()})
}
