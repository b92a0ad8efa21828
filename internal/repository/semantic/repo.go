// Package semantic adapts the store's KNN primitive to chunk retrieval.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/db"
	"github.com/folio-cloud/foliorag/internal/domain"
)

// conversationLimitCap bounds the side-query into prior conversation turns.
// Never larger than the primary limit.
const conversationLimitCap = 5

// searcher is the consumer interface for similarity search (ISP).
type searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo issues nearest-neighbor queries against the vector-indexed corpus.
type Repo struct {
	store             searcher
	chunkIndex        string
	conversationIndex string
	logger            *zap.Logger
}

// New creates a similarity search adapter.
func New(store searcher, chunkIndex, conversationIndex string, logger *zap.Logger) *Repo {
	return &Repo{
		store:             store,
		chunkIndex:        chunkIndex,
		conversationIndex: conversationIndex,
		logger:            logger,
	}
}

var returnFields = []string{"kind", "title", "body", "tags", "attrs"}

// Search returns corpus chunks with cosine similarity ≥ threshold, ordered
// by descending similarity. Ties keep the store's natural row order.
func (r *Repo) Search(
	ctx context.Context, vector []float32, kinds []string, threshold float64, limit int,
) ([]domain.Chunk, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.chunkIndex,
		Vector:       vector,
		Kinds:        kinds,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Score < threshold {
			continue
		}
		chunks = append(chunks, chunkFromEntry(e, domain.OriginSemantic))
	}
	return chunks, nil
}

// SearchConversation runs the side-query against the prior-conversation
// collection with a tighter limit.
func (r *Repo) SearchConversation(
	ctx context.Context, vector []float32, threshold float64, limit int,
) ([]domain.Chunk, error) {
	if limit > conversationLimitCap {
		limit = conversationLimitCap
	}
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.conversationIndex,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation knn search: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Score < threshold {
			continue
		}
		chunks = append(chunks, chunkFromEntry(e, domain.OriginConversation))
	}
	return chunks, nil
}

// chunkFromEntry maps a raw search hit to a domain chunk. The entry score
// becomes the per-query relevance annotation.
func chunkFromEntry(e db.SearchEntry, origin domain.Origin) domain.Chunk {
	c := domain.Chunk{
		ID:          idFromKey(e.Key),
		Kind:        e.Fields["kind"],
		Title:       e.Fields["title"],
		Body:        e.Fields["body"],
		LexicalTags: e.Fields["tags"],
		Relevance:   e.Score,
		Origin:      origin,
	}
	if raw := e.Fields["attrs"]; raw != "" {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(raw), &attrs); err == nil {
			c.Attributes = attrs
		}
	}
	return c
}

// idFromKey strips the storage key prefix: "foliorag:chunk:42" → "42".
func idFromKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
