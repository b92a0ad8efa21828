// Package embcache caches computed embeddings in the key-value store. A hit
// short-circuits the upstream provider call entirely.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/db"
	"github.com/folio-cloud/foliorag/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// entry is the persisted cache record.
type entry struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
}

// CachedEmbedder is a caching decorator over an embedding provider.
// Cache failures are soft: a cache outage never blocks an embedding.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	model      string
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec // label "result": hit/miss; may be nil
	logger     *zap.Logger
}

// New creates a caching decorator. The cache key binds the normalized text
// to the model identifier, so switching models never serves stale vectors.
func New(
	inner domain.Embedder,
	s store,
	model, keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		model:      model,
		keyPrefix:  keyPrefix + "emb_cache:",
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	// Fallback vectors are not worth a week of cache residency.
	if !result.Fallback {
		c.putToCache(ctx, key, text, result.Embedding)
	}
	return result, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(c.model))
	return c.keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if e.Model != c.model || len(e.Vector) == 0 {
		return nil, false
	}
	return e.Vector, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key, text string, vec []float32) {
	data, err := json.Marshal(entry{
		Model:      c.model,
		Dimensions: len(vec),
		Text:       text,
		Vector:     vec,
	})
	if err != nil {
		c.logger.Warn("Failed to encode embedding cache entry", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
