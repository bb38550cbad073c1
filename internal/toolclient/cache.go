package toolclient

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	jsonx "opsbot/internal/shared/json"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheEntry is a memoized tool result.
type CacheEntry struct {
	Result    any
	ExpiresAt time.Time
	HitCount  int
}

// ResultCache memoizes successful tool results with a per-entry absolute
// expiry. Expiry is lazy: an expired entry is removed by the read that
// observes it. The LRU bound only caps memory; hit counts never influence
// expiry or eviction.
type ResultCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *CacheEntry]
	now     func() time.Time
}

// NewResultCache creates a cache holding at most maxEntries results.
func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = DefaultOptions().CacheMaxEntries
	}
	entries, err := lru.New[string, *CacheEntry](maxEntries)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		panic(fmt.Sprintf("toolclient: create result cache: %v", err))
	}
	return &ResultCache{entries: entries, now: time.Now}
}

// CacheKey derives "<tool>:<md5 of params as sorted-key JSON>". Map keys are
// sorted at every nesting level by the encoder, so parameter order never
// changes the key.
func CacheKey(name string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := jsonx.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode parameters for cache key: %w", err)
	}
	sum := md5.Sum(data)
	return name + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns the live result stored under key and bumps its hit count.
// Hits leave recency alone, so eviction follows insertion order.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	entry.HitCount++
	return entry.Result, true
}

// Put stores result under key until now+ttl, replacing any previous entry.
func (c *ResultCache) Put(key string, result any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, &CacheEntry{Result: result, ExpiresAt: c.now().Add(ttl)})
}

// Peek returns a copy of the entry without touching hit count, recency or expiry.
func (c *ResultCache) Peek(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries.Peek(key)
	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len reports the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
