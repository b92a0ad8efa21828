package query

import (
	"regexp"
	"strings"
)

// Expansion holds the query variants produced by synonym substitution.
// Queries always starts with the original text; Groups lists the words
// from the synonym table that were found in the query.
type Expansion struct {
	Queries []string
	Groups  []string
}

// synonymTable maps résumé-domain words to their substitutes. Each synonym
// yields one expanded query by whole-word substitution.
var synonymTable = map[string][]string{
	"skills":     {"abilities", "expertise", "competencies"},
	"experience": {"background", "history", "work"},
	"job":        {"role", "position"},
	"project":    {"work", "application"},
	"projects":   {"work", "applications"},
	"built":      {"created", "developed"},
	"education":  {"degree", "studies"},
	"company":    {"employer", "organization"},
}

// Expand generates alternate phrasings of a query via synonym substitution.
// The original text is always the first variant; duplicates are never
// emitted. Words are scanned in their order of appearance in the text, so
// the output is deterministic.
func Expand(text string) Expansion {
	exp := Expansion{Queries: []string{text}}
	seen := map[string]struct{}{text: {}}
	matched := make(map[string]struct{})

	for _, word := range strings.Fields(strings.ToLower(text)) {
		syns, ok := synonymTable[word]
		if !ok {
			continue
		}
		if _, dup := matched[word]; dup {
			continue
		}
		matched[word] = struct{}{}
		exp.Groups = append(exp.Groups, word)

		re := wholeWordPattern(word)
		for _, syn := range syns {
			variant := re.ReplaceAllString(text, syn)
			if _, dup := seen[variant]; dup {
				continue
			}
			seen[variant] = struct{}{}
			exp.Queries = append(exp.Queries, variant)
		}
	}
	return exp
}

func wholeWordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}
