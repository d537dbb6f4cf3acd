package explain

import (
	"sync"
	"time"
)

// ReferenceCache holds transformed reference rows between store reads.
type ReferenceCache interface {
	// Get returns cached rows, or nil on a miss or after expiry.
	Get() [][]float64

	Set(rows [][]float64)

	// Invalidate clears the cache, forcing a refresh on the next Get.
	Invalidate()

	IsValid() bool
}

// CacheConfig controls reference cache expiry.
type CacheConfig struct {
	// TTL is the lifetime of cached rows. Zero means rows never expire.
	TTL time.Duration
}

// DefaultCacheConfig caches rows for ten minutes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 10 * time.Minute}
}

// InMemoryReferenceCache is a ReferenceCache guarded by an RWMutex.
type InMemoryReferenceCache struct {
	rows     [][]float64
	cachedAt time.Time
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryReferenceCache creates an empty cache.
func NewInMemoryReferenceCache(config CacheConfig) *InMemoryReferenceCache {
	return &InMemoryReferenceCache{
		config: config,
		now:    time.Now,
	}
}

func (c *InMemoryReferenceCache) Get() [][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	// rows are never mutated after Set, so the outer slice copy is enough
	out := make([][]float64, len(c.rows))
	copy(out, c.rows)
	return out
}

func (c *InMemoryReferenceCache) Set(rows [][]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rows = make([][]float64, len(rows))
	copy(c.rows, rows)
	c.cachedAt = c.now()
	c.isValid = true
}

func (c *InMemoryReferenceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.rows = nil
}

func (c *InMemoryReferenceCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

// fresh must be called with the lock held.
func (c *InMemoryReferenceCache) fresh() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
