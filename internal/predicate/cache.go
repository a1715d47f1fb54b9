package predicate

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// VerdictCache caches semantic-predicate verdicts keyed by predicate id and
// response content hash. Short prompts sampled many times often produce
// byte-identical responses; reusing the judge's verdict for those saves a
// judge call per duplicate.
//
// Entries expire after the TTL. A TTL of 0 disables caching.
type VerdictCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	passed   bool
	cachedAt time.Time
}

// NewVerdictCache creates a cache with the given TTL.
func NewVerdictCache(ttl time.Duration) *VerdictCache {
	return &VerdictCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Lookup returns the cached verdict for (predicateID, response) if present
// and not expired.
func (c *VerdictCache) Lookup(predicateID, response string) (passed, ok bool) {
	if c == nil || c.ttl <= 0 {
		return false, false
	}

	c.mu.RLock()
	entry, found := c.entries[cacheKey(predicateID, response)]
	c.mu.RUnlock()

	if !found || time.Since(entry.cachedAt) > c.ttl {
		return false, false
	}
	return entry.passed, true
}

// Store saves a verdict for (predicateID, response).
func (c *VerdictCache) Store(predicateID, response string, passed bool) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(predicateID, response)] = cacheEntry{passed: passed, cachedAt: time.Now()}
}

// Len returns the number of entries, including expired ones not yet overwritten.
func (c *VerdictCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(predicateID, response string) string {
	h := sha256.Sum256([]byte(response))
	return predicateID + "\x00" + hex.EncodeToString(h[:])
}
