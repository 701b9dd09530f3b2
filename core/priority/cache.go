package priority

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// CacheStats counts lookups for the fairness collector's hit-rate metric.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// HitRate returns hits over total lookups, zero when empty.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is an explicit TTL score cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(itemID string) (ItemScore, bool)
	Set(itemID string, score ItemScore, ttl time.Duration)
	Expire(itemID string)
	Stats() CacheStats
}

type cacheEntry struct {
	score    ItemScore
	deadline time.Time
}

// MemoryCache is an in-process TTL cache with an injected clock.
type MemoryCache struct {
	clock Clock

	mu      sync.RWMutex
	entries map[string]cacheEntry
	stats   CacheStats
}

// NewMemoryCache creates a cache. A nil clock uses the system clock.
func NewMemoryCache(clock Clock) *MemoryCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryCache{clock: clock, entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(itemID string) (ItemScore, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[itemID]
	if !ok || now.After(e.deadline) {
		if ok {
			delete(c.entries, itemID)
		}
		c.stats.Misses++
		return ItemScore{}, false
	}
	c.stats.Hits++
	return e.score, true
}

func (c *MemoryCache) Set(itemID string, score ItemScore, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[itemID] = cacheEntry{score: score, deadline: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Expire(itemID string) {
	c.mu.Lock()
	delete(c.entries, itemID)
	c.mu.Unlock()
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
