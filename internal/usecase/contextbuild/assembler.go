// Package contextbuild packs ranked chunks into a token-bounded text block
// for the downstream completion model.
package contextbuild

import (
	"sort"
	"strings"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// Assembler greedily packs chunks into a context window.
type Assembler struct {
	maxTokens int
	maxChunks int
}

// New creates an assembler with the given budget.
func New(maxTokens, maxChunks int) *Assembler {
	return &Assembler{maxTokens: maxTokens, maxChunks: maxChunks}
}

// EstimateTokens approximates token cost with the 1 token ≈ 4 characters
// heuristic, rounded up. Never exact; consumers must treat it as an estimate.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Assemble re-sorts chunks by relevance (caller ordering is not trusted) and
// appends them until adding the next chunk would exceed the token budget or
// the chunk cap, whichever comes first. Truncated is set when any eligible
// chunk was left out for either reason.
func (a *Assembler) Assemble(chunks []domain.Chunk) domain.AssembledContext {
	ordered := append([]domain.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Relevance > ordered[j].Relevance
	})

	ctx := domain.AssembledContext{}
	var parts []string
	var scoreSum float64
	seenOrigins := make(map[domain.Origin]struct{})

	for _, c := range ordered {
		if a.maxChunks > 0 && len(ctx.Chunks) >= a.maxChunks {
			ctx.Truncated = true
			break
		}

		block := formatChunk(c)
		cost := EstimateTokens(block)
		if a.maxTokens > 0 && ctx.TokenCount+cost > a.maxTokens {
			ctx.Truncated = true
			break
		}

		parts = append(parts, block)
		ctx.TokenCount += cost
		ctx.Chunks = append(ctx.Chunks, c)
		scoreSum += c.Relevance

		if _, seen := seenOrigins[c.Origin]; !seen {
			seenOrigins[c.Origin] = struct{}{}
			ctx.Sources = append(ctx.Sources, c.Origin)
		}
	}

	ctx.Content = strings.Join(parts, "\n\n")
	if len(ctx.Chunks) > 0 {
		ctx.RelevanceScore = scoreSum / float64(len(ctx.Chunks))
	}
	return ctx
}

// formatChunk prefixes the body with the upper-cased kind label; a title, if
// present, goes on its own line above.
func formatChunk(c domain.Chunk) string {
	body := strings.ToUpper(c.Kind) + ": " + c.Body
	if c.Title != "" {
		return c.Title + "\n" + body
	}
	return body
}
