package embedding

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// EmbeddingCache is a bounded in-memory cache of vectors keyed by CacheKey. Cached
// vectors are shared with callers and must not be modified.
type EmbeddingCache struct {
	cache *ristretto.Cache[string, []float32]
}

// NewEmbeddingCache returns a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) (*EmbeddingCache, error) {
	capacity = max(capacity, 1)
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		Metrics:     true,
		// Every vector costs 1, so MaxCost is a count of vectors.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: cache}, nil
}

// Get returns the vector for key.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	return c.cache.Get(key)
}

// Set stores vec under key. The admission policy may evict another vector or refuse
// vec when the cache is full.
func (c *EmbeddingCache) Set(key string, vec []float32) {
	if c.cache.Set(key, vec, 1) {
		c.cache.Wait()
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	added, evicted := c.cache.Metrics.KeysAdded(), c.cache.Metrics.KeysEvicted()
	if evicted > added {
		return 0
	}
	return int(added - evicted)
}

// Stats returns the hit and miss counts since creation.
func (c *EmbeddingCache) Stats() (hits, misses uint64) {
	return c.cache.Metrics.Hits(), c.cache.Metrics.Misses()
}

// Close stops the cache's background goroutines. Get and Set miss afterwards.
func (c *EmbeddingCache) Close() {
	c.cache.Close()
}
