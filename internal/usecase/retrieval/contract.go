package retrieval

import (
	"context"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// SemanticSearcher is the similarity-search surface the service consumes.
type SemanticSearcher interface {
	Search(ctx context.Context, vector []float32, kinds []string, threshold float64, limit int) ([]domain.Chunk, error)
	SearchConversation(ctx context.Context, vector []float32, threshold float64, limit int) ([]domain.Chunk, error)
}

// LexicalSearcher is the keyword-search surface the service consumes.
type LexicalSearcher interface {
	Search(ctx context.Context, keywords []string, kinds []string, limit int) ([]domain.Chunk, error)
}

// OutcomeCache stores finished outcomes keyed by request fingerprint.
// Implementations are soft-failing: a miss and an error look the same.
type OutcomeCache interface {
	Get(ctx context.Context, fingerprint string) (*domain.SearchOutcome, bool)
	Put(ctx context.Context, fingerprint string, outcome *domain.SearchOutcome)
}
