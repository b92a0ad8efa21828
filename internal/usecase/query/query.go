// Package query implements query understanding: normalization, intent
// detection, entity extraction, keyword extraction, and synonym expansion.
// Everything here is a pure function over fixed tables: no I/O, fully
// deterministic for a given input.
package query

import (
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases a raw query, strips non-word characters, and
// collapses whitespace.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stopWords are dropped during keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "has": {}, "have": {},
	"was": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "with": {}, "about": {}, "into": {}, "your": {}, "tell": {},
	"how": {}, "does": {}, "did": {}, "this": {}, "that": {}, "his": {},
	"her": {}, "their": {}, "them": {}, "from": {}, "any": {}, "some": {},
}

// Keywords extracts search keywords: lower-case, strip punctuation, split on
// whitespace, drop tokens of two characters or fewer and stop words,
// de-duplicate preserving first occurrence.
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(Normalize(text)) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
