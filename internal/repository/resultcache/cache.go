// Package resultcache memoizes whole search outcomes keyed by the request
// fingerprint. Concurrent identical searches are not de-duplicated in
// flight; both populate the cache with equivalent content, which is a
// harmless overwrite.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/db"
	"github.com/folio-cloud/foliorag/internal/domain"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DelPattern(ctx context.Context, pattern string) (int, error)
}

// Cache stores search outcomes with a TTL. All operations fail soft.
type Cache struct {
	store     store
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// New creates a result cache.
func New(s store, keyPrefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: s, keyPrefix: keyPrefix + "search:", ttl: ttl, logger: logger}
}

// Get returns the cached outcome for a request fingerprint, if present.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.SearchOutcome, bool) {
	data, err := c.store.Get(ctx, c.keyPrefix+fingerprint)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read result cache", zap.Error(err))
		}
		return nil, false
	}

	var outcome domain.SearchOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		c.logger.Warn("Failed to decode cached outcome", zap.Error(err))
		return nil, false
	}
	return &outcome, true
}

// Put stores an outcome under a request fingerprint.
func (c *Cache) Put(ctx context.Context, fingerprint string, outcome *domain.SearchOutcome) {
	data, err := json.Marshal(outcome)
	if err != nil {
		c.logger.Warn("Failed to encode outcome for cache", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.keyPrefix+fingerprint, data, c.ttl); err != nil {
		c.logger.Warn("Failed to write result cache", zap.Error(err))
	}
}

// Invalidate drops every cached outcome. Called after corpus re-ingestion.
func (c *Cache) Invalidate(ctx context.Context) int {
	n, err := c.store.DelPattern(ctx, c.keyPrefix+"*")
	if err != nil {
		c.logger.Warn("Failed to invalidate result cache", zap.Error(err))
	}
	return n
}
