// Package retrieval orchestrates the hybrid search pipeline: query
// understanding, the semantic and keyword paths run concurrently, result
// fusion, and outcome caching. A failed path degrades to an empty
// contribution instead of failing the search.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
	"github.com/folio-cloud/foliorag/internal/metrics"
	"github.com/folio-cloud/foliorag/internal/usecase/fusion"
	"github.com/folio-cloud/foliorag/internal/usecase/query"
)

// Options carries the ranking knobs, normally sourced from config.
type Options struct {
	SemanticWeight     float64
	KeywordWeight      float64
	DiversityWeight    float64
	RelevanceThreshold float64 // fused-score floor
	FallbackDiscount   float64 // multiplier on similarity from fallback vectors
	MaxResults         int     // hard cap on returned chunks
}

// Service runs hybrid retrieval over the portfolio corpus.
type Service struct {
	embedder domain.Embedder
	semantic SemanticSearcher
	lexical  LexicalSearcher
	cache    OutcomeCache // nil disables outcome caching
	opts     Options
	logger   *zap.Logger
}

// New creates the retrieval service. cache may be nil.
func New(
	embedder domain.Embedder,
	semantic SemanticSearcher,
	lexical LexicalSearcher,
	cache OutcomeCache,
	opts Options,
	log *zap.Logger,
) *Service {
	return &Service{
		embedder: embedder,
		semantic: semantic,
		lexical:  lexical,
		cache:    cache,
		opts:     opts,
		logger:   log,
	}
}

// Search executes one retrieval request. The only error it returns is
// domain.ErrInvalidRequest; backend failures degrade the result set and
// are logged instead.
func (s *Service) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchOutcome, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	fingerprint := req.Fingerprint()
	if s.cache != nil {
		if outcome, ok := s.cache.Get(ctx, fingerprint); ok {
			metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			outcome.CacheHit = true
			return outcome, nil
		}
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	log := s.logger

	normalized := query.Normalize(req.Query)

	outcome := &domain.SearchOutcome{}
	if req.DetectIntent {
		outcome.Intent = query.Detect(normalized).Label
	}

	variants := []string{normalized}
	if req.ExpandQuery {
		exp := query.Expand(normalized)
		variants = exp.Queries
		outcome.Expansions = exp.Queries[1:]
	}

	var (
		wg           sync.WaitGroup
		semanticHits []domain.Chunk
		lexicalHits  []domain.Chunk
	)

	if req.Semantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semanticHits = s.semanticPath(ctx, req, variants, log)
		}()
	}
	if req.Keyword {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalHits = s.lexicalPath(ctx, req, variants, log)
		}()
	}
	wg.Wait()

	metrics.SearchPathResults.WithLabelValues("semantic").Observe(float64(len(semanticHits)))
	metrics.SearchPathResults.WithLabelValues("keyword").Observe(float64(len(lexicalHits)))

	chunks, stats := fusion.Fuse(semanticHits, lexicalHits, s.fusionOptions(req))

	outcome.Chunks = chunks
	outcome.TotalResults = len(chunks)
	outcome.Semantic = stats.Semantic
	outcome.Keyword = stats.Keyword
	outcome.Merged = stats.Merged
	outcome.Elapsed = time.Since(start)

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SearchDuration.Observe(outcome.Elapsed.Seconds())

	if s.cache != nil {
		s.cache.Put(ctx, fingerprint, outcome)
	}
	return outcome, nil
}

// semanticPath embeds each query variant and runs KNN per variant. The
// conversation side-query reuses the first variant's vector. Failures
// shrink the result set; they never propagate.
func (s *Service) semanticPath(
	ctx context.Context, req *domain.SearchRequest, variants []string, log *zap.Logger,
) []domain.Chunk {
	var hits []domain.Chunk
	var recallVector []float32

	for _, v := range variants {
		emb, err := s.embedder.Embed(ctx, v)
		if err != nil {
			metrics.SearchPathErrorsTotal.WithLabelValues("semantic").Inc()
			log.Warn("Embedding failed for query variant", zap.String("variant", v), zap.Error(err))
			continue
		}
		if recallVector == nil {
			recallVector = emb.Embedding
		}

		chunks, err := s.semantic.Search(ctx, emb.Embedding, req.Kinds, req.Threshold, req.Limit)
		if err != nil {
			metrics.SearchPathErrorsTotal.WithLabelValues("semantic").Inc()
			log.Warn("Similarity search failed for query variant", zap.String("variant", v), zap.Error(err))
			continue
		}
		if emb.Fallback {
			discount(chunks, s.opts.FallbackDiscount)
		}
		hits = append(hits, chunks...)
	}

	if req.SearchConversation && recallVector != nil {
		chunks, err := s.semantic.SearchConversation(ctx, recallVector, req.Threshold, req.Limit)
		if err != nil {
			log.Warn("Conversation recall failed", zap.Error(err))
		} else {
			hits = append(hits, chunks...)
		}
	}
	return hits
}

// lexicalPath extracts keywords per variant and runs the pattern query.
func (s *Service) lexicalPath(
	ctx context.Context, req *domain.SearchRequest, variants []string, log *zap.Logger,
) []domain.Chunk {
	var hits []domain.Chunk
	for _, v := range variants {
		keywords := query.Keywords(v)
		if len(keywords) == 0 {
			continue
		}
		chunks, err := s.lexical.Search(ctx, keywords, req.Kinds, req.Limit)
		if err != nil {
			metrics.SearchPathErrorsTotal.WithLabelValues("keyword").Inc()
			log.Warn("Keyword search failed for query variant", zap.String("variant", v), zap.Error(err))
			continue
		}
		hits = append(hits, chunks...)
	}
	return hits
}

func (s *Service) fusionOptions(req *domain.SearchRequest) fusion.Options {
	limit := req.Limit
	if s.opts.MaxResults > 0 && limit > s.opts.MaxResults {
		limit = s.opts.MaxResults
	}
	return fusion.Options{
		SemanticWeight:     s.opts.SemanticWeight,
		KeywordWeight:      s.opts.KeywordWeight,
		DiversityWeight:    s.opts.DiversityWeight,
		RelevanceThreshold: s.opts.RelevanceThreshold,
		MaxResults:         limit,
		Dedupe:             true,
	}
}

// discount rescales similarity from a degraded query vector so synthetic
// matches cannot outrank provider-embedded ones.
func discount(chunks []domain.Chunk, factor float64) {
	if factor <= 0 || factor >= 1 {
		return
	}
	for i := range chunks {
		chunks[i].Relevance *= factor
	}
}

// String renders the options for startup logging.
func (o Options) String() string {
	return fmt.Sprintf("semantic=%.2f keyword=%.2f diversity=%.2f floor=%.2f max=%d",
		o.SemanticWeight, o.KeywordWeight, o.DiversityWeight, o.RelevanceThreshold, o.MaxResults)
}
