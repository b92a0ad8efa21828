// Package embedding implements the embedding gateway: text preprocessing,
// overlapping-window chunking for long input, chunk-vector averaging, and a
// deterministic fallback when the upstream provider is down.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
	"github.com/folio-cloud/foliorag/internal/metrics"
)

// Config holds gateway settings.
type Config struct {
	MaxTokens    int  // input truncation budget (estimated)
	ChunkSize    int  // characters per window for long text
	ChunkOverlap int  // characters of window overlap
	Fallback     bool // synthesize hash-projection vectors on provider failure
	Dimensions   int  // fallback vector dimensionality
}

// Gateway turns raw text into a single fixed-dimension vector.
type Gateway struct {
	inner  domain.Embedder // composed chain: cache → rate limit → transport
	cfg    Config
	logger *zap.Logger
}

// NewGateway creates an embedding gateway over a composed embedder chain.
func NewGateway(inner domain.Embedder, cfg Config, logger *zap.Logger) *Gateway {
	return &Gateway{inner: inner, cfg: cfg, logger: logger}
}

// Embed preprocesses text, chunks it when it exceeds the window size, embeds
// each chunk, and averages the chunk vectors component-wise. On upstream
// failure it either synthesizes a tagged fallback vector or fails with
// ErrEmbeddingUnavailable.
func (g *Gateway) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	cleaned := Preprocess(text, g.cfg.MaxTokens)
	if cleaned == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty text after preprocessing", domain.ErrInvalidRequest)
	}

	chunks := SplitChunks(cleaned, g.cfg.ChunkSize, g.cfg.ChunkOverlap)

	vectors := make([][]float32, 0, len(chunks))
	var promptTokens, totalTokens int
	for _, chunk := range chunks {
		res, err := g.inner.Embed(ctx, chunk)
		if err != nil {
			return g.degrade(cleaned, err)
		}
		vectors = append(vectors, res.Embedding)
		promptTokens += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	if len(vectors) == 1 {
		return domain.EmbeddingResult{
			Embedding:    vectors[0],
			PromptTokens: promptTokens,
			TotalTokens:  totalTokens,
		}, nil
	}

	avg, err := domain.AverageVectors(vectors)
	if err != nil {
		// Chunks of one text disagreeing on dimensionality is a
		// configuration bug, surfaced as-is.
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    avg,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// degrade applies the fallback policy after an upstream failure.
func (g *Gateway) degrade(text string, cause error) (domain.EmbeddingResult, error) {
	if errors.Is(cause, domain.ErrDimensionMismatch) || errors.Is(cause, domain.ErrRateLimited) {
		return domain.EmbeddingResult{}, cause
	}
	if !g.cfg.Fallback {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, cause)
	}

	g.logger.Warn("Embedding provider failed, using fallback vector", zap.Error(cause))
	metrics.EmbeddingFallbacksTotal.Inc()
	return domain.EmbeddingResult{
		Embedding: FallbackVector(text, g.cfg.Dimensions),
		Fallback:  true,
	}, nil
}

// FallbackVector synthesizes a deterministic unit vector from a
// character-hash projection of the text. Not semantically meaningful; the
// Fallback tag lets ranking discount matches sourced from it.
func FallbackVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	var norm float64
	for j := range vec {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d:%s", j, text)
		// Map the hash onto [-1, 1].
		v := float64(int64(h.Sum64())) / math.MaxInt64
		vec[j] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= scale
		}
	}
	return vec
}
