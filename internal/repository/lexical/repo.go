// Package lexical adapts the store's pattern-search primitive to chunk
// retrieval and recomputes relevance client-side: the store's rank score
// only decides which rows come back when the result set is capped.
package lexical

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/db"
	"github.com/folio-cloud/foliorag/internal/domain"
)

// Keyword match awards, normalized by query keyword count into [0,1].
const (
	exactMatchAward     = 1.0
	tagMatchAward       = 0.7
	substringMatchAward = 0.5
)

// searcher is the consumer interface for pattern search (ISP).
type searcher interface {
	SearchPattern(ctx context.Context, q *db.PatternQuery) (*db.SearchResult, error)
}

// Repo issues keyword queries against the corpus, topping up from a
// simpler secondary collection when the primary comes up short.
type Repo struct {
	store      searcher
	chunkIndex string
	factsIndex string
	logger     *zap.Logger
}

// New creates a keyword search adapter. factsIndex may be empty to disable
// the secondary top-up.
func New(store searcher, chunkIndex, factsIndex string, logger *zap.Logger) *Repo {
	return &Repo{store: store, chunkIndex: chunkIndex, factsIndex: factsIndex, logger: logger}
}

var returnFields = []string{"kind", "title", "body", "tags"}

// Search runs the OR-pattern query over the extracted keywords and rescores
// each hit. Results from the secondary collection are only fetched when the
// primary collection returns fewer rows than the requested limit.
func (r *Repo) Search(
	ctx context.Context, keywords []string, kinds []string, limit int,
) ([]domain.Chunk, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	chunks, err := r.searchIndex(ctx, r.chunkIndex, keywords, kinds, limit)
	if err != nil {
		return nil, err
	}

	if r.factsIndex != "" && len(chunks) < limit {
		extra, err := r.searchIndex(ctx, r.factsIndex, keywords, kinds, limit-len(chunks))
		if err != nil {
			// The secondary corpus is best-effort.
			r.logger.Warn("Secondary keyword search failed", zap.Error(err))
		} else {
			chunks = append(chunks, extra...)
		}
	}

	return chunks, nil
}

func (r *Repo) searchIndex(
	ctx context.Context, index string, keywords, kinds []string, limit int,
) ([]domain.Chunk, error) {
	res, err := r.store.SearchPattern(ctx, &db.PatternQuery{
		IndexName:    index,
		Terms:        keywords,
		Kinds:        kinds,
		Limit:        limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("pattern search %s: %w", index, err)
	}

	chunks := make([]domain.Chunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		c := domain.Chunk{
			ID:          idFromKey(e.Key),
			Kind:        e.Fields["kind"],
			Title:       e.Fields["title"],
			Body:        e.Fields["body"],
			LexicalTags: e.Fields["tags"],
			Origin:      domain.OriginLexical,
		}
		c.Relevance = Score(keywords, &c)
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Score computes lexical relevance in [0,1]: each query keyword awards 1.0
// on an exact content-keyword match, 0.7 on a tag match, 0.5 on a raw body
// substring, 0 otherwise; the sum is normalized by the query keyword count.
func Score(keywords []string, c *domain.Chunk) float64 {
	if len(keywords) == 0 {
		return 0
	}

	contentWords := wordSet(c.Title + " " + c.Body)
	tags := strings.ToLower(c.LexicalTags)
	body := strings.ToLower(c.Body)

	var sum float64
	for _, kw := range keywords {
		switch {
		case contentWords[kw]:
			sum += exactMatchAward
		case tags != "" && strings.Contains(tags, kw):
			sum += tagMatchAward
		case strings.Contains(body, kw):
			sum += substringMatchAward
		}
	}
	return sum / float64(len(keywords))
}

// wordSet tokenizes text into a lower-cased word membership set.
func wordSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func idFromKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
