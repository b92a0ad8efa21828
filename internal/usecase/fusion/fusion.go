// Package fusion merges the semantic and keyword result sets into one
// ranked, de-duplicated, threshold-filtered list.
package fusion

import (
	"sort"
	"strings"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// Default fusion weights.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultThreshold      = 0.6
)

// dedupePrefixLen is the number of normalized body characters compared when
// collapsing near-identical chunks.
const dedupePrefixLen = 200

// Options control fusion behavior. Weights need not sum to 1.
type Options struct {
	SemanticWeight     float64
	KeywordWeight      float64
	DiversityWeight    float64 // 0 disables the same-kind repetition penalty
	RelevanceThreshold float64
	MaxResults         int
	Dedupe             bool
}

// DefaultOptions returns the standard fusion configuration.
func DefaultOptions(maxResults int) Options {
	return Options{
		SemanticWeight:     DefaultSemanticWeight,
		KeywordWeight:      DefaultKeywordWeight,
		RelevanceThreshold: DefaultThreshold,
		MaxResults:         maxResults,
		Dedupe:             true,
	}
}

// Stats reports per-path counts for observability.
type Stats struct {
	Semantic int // semantic-path result count
	Keyword  int // keyword-path result count
	Merged   int // pre-threshold merged count
}

// Fuse merges semantic and keyword results keyed by (kind, id), weights each
// path's score, adds the two for chunks found by both (origin becomes
// hybrid), applies the diversity penalty, sorts, de-duplicates, filters by
// the relevance floor, and truncates to MaxResults.
//
// The diversity penalty is computed after an initial sort by raw fused
// score, so the n-th ranked occurrence of a kind is always the n-th
// penalized regardless of merge order.
func Fuse(semantic, keyword []domain.Chunk, opts Options) ([]domain.Chunk, Stats) {
	stats := Stats{Semantic: len(semantic), Keyword: len(keyword)}

	merged := make(map[string]*domain.Chunk, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for _, c := range semantic {
		key := c.Key()
		if existing, ok := merged[key]; ok {
			// Same chunk matched by multiple query variants: keep the best score.
			if c.Relevance*opts.SemanticWeight > existing.Relevance {
				existing.Relevance = c.Relevance * opts.SemanticWeight
			}
			continue
		}
		mc := c
		mc.Relevance = c.Relevance * opts.SemanticWeight
		merged[key] = &mc
		order = append(order, key)
	}

	for _, c := range keyword {
		key := c.Key()
		if existing, ok := merged[key]; ok {
			if existing.Origin == domain.OriginSemantic || existing.Origin == domain.OriginHybrid {
				existing.Relevance += c.Relevance * opts.KeywordWeight
				existing.Origin = domain.OriginHybrid
			} else if c.Relevance*opts.KeywordWeight > existing.Relevance {
				existing.Relevance = c.Relevance * opts.KeywordWeight
			}
			continue
		}
		mc := c
		mc.Relevance = c.Relevance * opts.KeywordWeight
		merged[key] = &mc
		order = append(order, key)
	}

	stats.Merged = len(merged)

	results := make([]domain.Chunk, 0, len(merged))
	for _, key := range order {
		results = append(results, *merged[key])
	}

	// Initial sort by raw fused score; makes the penalty scan deterministic.
	sortByRelevance(results)

	if opts.DiversityWeight > 0 {
		applyDiversityPenalty(results, opts.DiversityWeight)
		sortByRelevance(results)
	}

	if opts.Dedupe {
		results = dedupe(results)
	}

	filtered := results[:0]
	for _, c := range results {
		if c.Relevance >= opts.RelevanceThreshold {
			filtered = append(filtered, c)
		}
	}
	results = filtered

	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}

	return results, stats
}

// applyDiversityPenalty scales down repeated kinds: the n-th prior
// occurrence of a kind multiplies the next one's score by
// (1 - weight*n*0.1). Scanned in rank order.
func applyDiversityPenalty(chunks []domain.Chunk, weight float64) {
	counts := make(map[string]int)
	for i := range chunks {
		n := counts[chunks[i].Kind]
		if n > 0 {
			penalty := 1 - weight*float64(n)*0.1
			if penalty < 0 {
				penalty = 0
			}
			chunks[i].Relevance *= penalty
		}
		counts[chunks[i].Kind]++
	}
}

// dedupe drops chunks whose normalized body prefix was already seen. Runs
// after sorting, so the highest-ranked occurrence survives.
func dedupe(chunks []domain.Chunk) []domain.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		sig := bodySignature(c.Body)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, c)
	}
	return out
}

func bodySignature(body string) string {
	s := strings.Join(strings.Fields(strings.ToLower(body)), " ")
	// Cut on runes, not bytes; a byte cut can split a multi-byte character
	// and collapse bodies that only diverge past the byte boundary.
	if r := []rune(s); len(r) > dedupePrefixLen {
		s = string(r[:dedupePrefixLen])
	}
	return s
}

// sortByRelevance sorts descending by score, ties broken by merge key so
// equal-score orderings are stable across runs.
func sortByRelevance(chunks []domain.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Relevance != chunks[j].Relevance {
			return chunks[i].Relevance > chunks[j].Relevance
		}
		return chunks[i].Key() < chunks[j].Key()
	})
}
