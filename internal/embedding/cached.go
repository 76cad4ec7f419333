package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// CachedEmbedder serves repeated texts from an in-memory cache and, when configured,
// a persistent cache. Only misses reach the wrapped embedder.
type CachedEmbedder struct {
	inner      Embedder
	memory     *EmbeddingCache
	persistent *PersistentCache
	logger     *zap.Logger
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithPersistentCache adds a disk-backed cache behind the in-memory one. The CachedEmbedder
// closes it on Close.
func WithPersistentCache(p *PersistentCache) CachedOption {
	return func(c *CachedEmbedder) { c.persistent = p }
}

// WithCacheLogger sets the logger for cache write failures.
func WithCacheLogger(l *zap.Logger) CachedOption {
	return func(c *CachedEmbedder) { c.logger = l }
}

// NewCachedEmbedder wraps inner with an in-memory cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int, opts ...CachedOption) (*CachedEmbedder, error) {
	memory, err := NewEmbeddingCache(capacity)
	if err != nil {
		return nil, err
	}
	c := &CachedEmbedder{inner: inner, memory: memory}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c, nil
}

// CacheKey returns the cache key for text embedded by modelID.
func CacheKey(modelID, text string) string {
	sum := sha256.Sum256([]byte(modelID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text or embeds and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds only the texts missing from both caches, in one inner call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	modelID := c.inner.ModelID()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = CacheKey(modelID, text)
		if v, ok := c.lookup(keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = vecs[j]
		missKeys[j] = keys[i]
		c.memory.Set(keys[i], vecs[j])
	}
	if c.persistent != nil {
		if err := c.persistent.SetMany(missKeys, vecs); err != nil {
			c.logger.Warn("persist embeddings failed", zap.Error(err))
		}
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(key string) ([]float32, bool) {
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	if c.persistent == nil {
		return nil, false
	}
	v, ok := c.persistent.Get(key)
	if d := c.inner.Dimensions(); ok && (d == 0 || len(v) == d) {
		c.memory.Set(key, v)
		return v, true
	}
	return nil, false
}

// Dimensions returns the wrapped embedder's dimensions.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelID returns the wrapped embedder's model ID.
func (c *CachedEmbedder) ModelID() string { return c.inner.ModelID() }

// Close closes both caches and the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	hits, misses := c.memory.Stats()
	c.logger.Debug("embedding cache closed",
		zap.Int("entries", c.memory.Len()),
		zap.Uint64("hits", hits),
		zap.Uint64("misses", misses))
	c.memory.Close()
	var firstErr error
	if c.persistent != nil {
		firstErr = c.persistent.Close()
	}
	if err := c.inner.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
