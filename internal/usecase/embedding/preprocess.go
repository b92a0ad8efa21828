package embedding

import (
	"regexp"
	"strings"
)

// charsPerToken is the 1-token ≈ 4-character heuristic used for truncation.
// Never exact; token counts derived from it are estimates.
const charsPerToken = 4

// disallowedRe strips characters outside a conservative punctuation allowlist.
var (
	disallowedRe = regexp.MustCompile(`[^\w\s.,!?;:'"()\-/&@+#%]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Preprocess normalizes text before embedding: trim, collapse whitespace,
// strip disallowed characters, truncate to the estimated token budget.
func Preprocess(text string, maxTokens int) string {
	s := strings.TrimSpace(text)
	s = disallowedRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if maxTokens > 0 && len(s) > maxTokens*charsPerToken {
		s = s[:maxTokens*charsPerToken]
	}
	return s
}

// sentenceBoundary characters for chunk splitting.
const sentenceBoundary = ".?!"

// SplitChunks splits long text into overlapping windows. The cut snaps to
// the last sentence boundary past the midpoint of the window when one
// exists, otherwise it is a hard cut at the window size. Overlap carries the
// tail of each window into the next.
func SplitChunks(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		window := text[start:end]
		if cut := strings.LastIndexAny(window, sentenceBoundary); cut > size/2 {
			end = start + cut + 1
		}

		chunks = append(chunks, text[start:end])

		next := end - overlap
		if next <= start {
			next = end // overlap must not stall the scan
		}
		start = next
	}
	return chunks
}
