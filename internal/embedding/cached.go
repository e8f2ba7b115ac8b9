package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"docchat/internal/domain"
)

// DefaultCacheSize bounds the embedding cache. At 1024 dimensions and 4
// bytes per component, 1000 entries is roughly 4MB.
const DefaultCacheSize = 1000

// Cached wraps an Embedder with an LRU cache so repeated texts, most
// commonly re-asked queries, skip the network call.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached creates a caching wrapper around inner.
func NewCached(inner domain.Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

// key is model-qualified so a config change never serves stale vectors.
func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.cache.Get(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) ModelName() string { return c.inner.ModelName() }
