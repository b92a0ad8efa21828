package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain. Fallback is set when the vector was synthesized from a
// character-hash projection instead of the real model, so ranking can
// discount similarity matches sourced from it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
	Fallback     bool
}

// AverageVectors computes the component-wise mean of chunk vectors.
// All vectors must share one dimensionality.
func AverageVectors(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dim %d, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
		for j, f := range v {
			sum[j] += float64(f)
		}
	}
	avg := make([]float32, dim)
	n := float64(len(vectors))
	for j, s := range sum {
		avg[j] = float32(s / n)
	}
	return avg, nil
}
