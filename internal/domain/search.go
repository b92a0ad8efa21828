package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Search parameter limits.
const (
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
)

// SearchRequest is one search call's parameters.
type SearchRequest struct {
	Query     string   `json:"query"`
	Kinds     []string `json:"kinds,omitempty"` // allowed chunk kinds; empty = all
	Limit     int      `json:"limit,omitempty"`
	Threshold float64  `json:"threshold,omitempty"` // similarity floor, 0-1

	Semantic           bool `json:"semantic"`
	Keyword            bool `json:"keyword"`
	SearchConversation bool `json:"search_conversation,omitempty"`
	ExpandQuery        bool `json:"expand_query,omitempty"`
	DetectIntent       bool `json:"detect_intent,omitempty"`
}

// ApplyDefaults fills zero-value parameters.
func (r *SearchRequest) ApplyDefaults() {
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if !r.Semantic && !r.Keyword {
		r.Semantic = true
		r.Keyword = true
	}
}

// Validate rejects malformed requests before any I/O.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if len(r.Query) > MaxQueryLength {
		return fmt.Errorf("%w: query too long (max %d chars)", ErrInvalidRequest, MaxQueryLength)
	}
	if r.Limit < 1 || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be 1-%d, got %d", ErrInvalidRequest, MaxLimit, r.Limit)
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be 0-1, got %f", ErrInvalidRequest, r.Threshold)
	}
	return nil
}

// Fingerprint returns a deterministic cache key for the request content.
// Identical requests map to identical fingerprints regardless of kind order.
func (r *SearchRequest) Fingerprint() string {
	kinds := append([]string(nil), r.Kinds...)
	sort.Strings(kinds)

	var b strings.Builder
	b.WriteString(r.Query)
	b.WriteByte(0)
	b.WriteString(strings.Join(kinds, ","))
	fmt.Fprintf(&b, "\x00%d\x00%.4f\x00%t%t%t%t%t",
		r.Limit, r.Threshold,
		r.Semantic, r.Keyword, r.SearchConversation, r.ExpandQuery, r.DetectIntent)

	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

// KindAllowed reports whether a chunk kind passes the request filter.
func (r *SearchRequest) KindAllowed(kind string) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SearchOutcome is the return value of one search call.
type SearchOutcome struct {
	Chunks       []Chunk       `json:"chunks"`
	TotalResults int           `json:"total_results"`
	Semantic     int           `json:"semantic_results"`
	Keyword      int           `json:"keyword_results"`
	Merged       int           `json:"merged_results"` // pre-threshold merged count
	Elapsed      time.Duration `json:"elapsed_ns"`
	CacheHit     bool          `json:"cache_hit"`
	Intent       string        `json:"intent,omitempty"`
	Expansions   []string      `json:"expansions,omitempty"` // query variants actually searched
}

// AssembledContext is the output of context packing.
type AssembledContext struct {
	Content        string   `json:"content"`
	Sources        []Origin `json:"sources"` // distinct origins, first-seen order
	RelevanceScore float64  `json:"relevance_score"`
	Chunks         []Chunk  `json:"chunks"`
	TokenCount     int      `json:"token_count"` // estimate, never exact
	Truncated      bool     `json:"truncated"`
}
