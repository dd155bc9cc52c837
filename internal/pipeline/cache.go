package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Fingerprint returns the cache key for a requirements text: a SHA-256 hex
// digest of the raw bytes. Case- and whitespace-sensitive on purpose; two
// texts cache together only when byte-identical.
func Fingerprint(requirements string) string {
	sum := sha256.Sum256([]byte(requirements))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	result     *Result
	insertedAt time.Time
}

// Cache memoizes full generation results by requirements fingerprint with
// lazy TTL expiry on read. Safe for concurrent use by multiple sessions.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	enabled    bool

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewCache creates a cache. maxEntries bounds memory: inserting beyond the
// cap evicts the oldest entry by insertion time.
func NewCache(enabled bool, ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		enabled:    enabled,
		now:        time.Now,
	}
}

// Get returns the live cached result for a fingerprint. A stale entry is
// evicted as a side effect of the read.
func (c *Cache) Get(fingerprint string) (*Result, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, fingerprint)
		return nil, false
	}

	return entry.result, true
}

// Put stores a result. Entries are replaced atomically as whole values;
// no-op when caching is disabled.
func (c *Cache) Put(fingerprint string, result *Result) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[fingerprint] = cacheEntry{result: result, insertedAt: c.now()}
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Caller holds the lock.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
