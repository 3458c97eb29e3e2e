// Package store provides result caching and search history persistence for
// the cover search service.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"coverhound/pkg/covers"
	"coverhound/pkg/titlenorm"
)

// Cache is a thread-safe LRU of merged search results with a Bloom filter
// in front of it: most queries are new, and the filter answers those
// without touching the LRU.
type Cache struct {
	mu    sync.RWMutex
	lru   *lru.Cache[string, cacheEntry]
	bloom *bloom.BloomFilter
	ttl   time.Duration

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	results []covers.CoverSearchResult
	stored  time.Time
}

// NewCache creates a cache holding up to maxEntries merged result sets.
// Entries older than ttl are served as misses.
func NewCache(maxEntries int, falsePositiveRate float64, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	lruCache, _ := lru.New[string, cacheEntry](maxEntries)
	return &Cache{
		lru:   lruCache,
		bloom: bloom.NewWithEstimates(uint(maxEntries), falsePositiveRate),
		ttl:   ttl,
	}
}

// Key folds a query into its canonical cache key.
func Key(artist, album, title string) string {
	parts := []string{
		titlenorm.Key(artist),
		titlenorm.Key(titlenorm.StripDisc(album)),
		titlenorm.Key(title),
	}
	return strings.Join(parts, "|")
}

// Get returns the cached results for a key, if present and fresh.
func (c *Cache) Get(key string) ([]covers.CoverSearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bloom.TestString(key) {
		c.misses++
		return nil, false
	}

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.stored) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	results := make([]covers.CoverSearchResult, len(entry.results))
	copy(results, entry.results)
	return results, true
}

// Put stores the merged results for a key. Empty result sets are cached
// too: a query that found nothing will find nothing again until the entry
// expires.
func (c *Cache) Put(key string, results []covers.CoverSearchResult) {
	stored := make([]covers.CoverSearchResult, len(results))
	copy(stored, results)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, cacheEntry{results: stored, stored: time.Now()})
	c.bloom.AddString(key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
