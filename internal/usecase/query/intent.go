package query

import "strings"

// Intent is the detected classification of a query.
type Intent struct {
	Label      string
	Confidence float64
	Entities   []Entity
	Keywords   []string
}

// Entity is a fixed-vocabulary hit in the query text.
type Entity struct {
	Value      string
	Category   string
	Confidence float64
}

// GeneralIntent is emitted when no trigger phrase matches.
const GeneralIntent = "general"

// intentTable maps labels to trigger phrases. Order matters: when two labels
// reach the same confidence, the one listed first wins.
var intentTable = []struct {
	label    string
	triggers []string
}{
	{"experience", []string{"experience", "work", "job", "career", "employment", "company", "role", "position"}},
	{"projects", []string{"project", "built", "portfolio", "created", "developed", "shipped", "demo"}},
	{"skills", []string{"skill", "skills", "technologies", "technology", "stack", "languages", "tools", "proficient"}},
	{"education", []string{"education", "degree", "university", "college", "studied", "certification", "course"}},
	{"contact", []string{"contact", "email", "reach", "hire", "hiring", "available", "linkedin"}},
}

// Per-category entity confidence constants.
const (
	technologyConfidence   = 0.9
	organizationConfidence = 0.85
)

var technologyVocab = []string{
	"go", "golang", "python", "javascript", "typescript", "java", "rust",
	"react", "vue", "angular", "node", "docker", "kubernetes", "terraform",
	"aws", "gcp", "azure", "postgres", "postgresql", "redis", "kafka",
	"grpc", "graphql", "sql", "linux", "git",
}

var organizationVocab = []string{
	"google", "amazon", "microsoft", "meta", "apple", "netflix", "stripe",
	"github", "openai",
}

// Detect classifies a normalized query against the fixed intent table.
// Confidence is the fraction of a label's triggers found in the text; the
// highest-confidence label wins, ties broken by table order. When nothing
// matches, the label is "general" at confidence 0.5.
func Detect(text string) Intent {
	normalized := Normalize(text)
	words := strings.Fields(normalized)

	best := Intent{Label: GeneralIntent, Confidence: 0}
	for _, row := range intentTable {
		found := 0
		for _, trigger := range row.triggers {
			if strings.Contains(normalized, trigger) {
				found++
			}
		}
		if found == 0 {
			continue
		}
		confidence := float64(found) / float64(len(row.triggers))
		if confidence > best.Confidence {
			best.Label = row.label
			best.Confidence = confidence
		}
	}
	if best.Label == GeneralIntent {
		best.Confidence = 0.5
	}

	best.Entities = extractEntities(words)
	best.Keywords = Keywords(text)
	return best
}

// extractEntities matches tokenized words against the fixed vocabularies.
func extractEntities(words []string) []Entity {
	var out []Entity
	seen := make(map[string]struct{})
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		if contains(technologyVocab, w) {
			out = append(out, Entity{Value: w, Category: "technology", Confidence: technologyConfidence})
			seen[w] = struct{}{}
		} else if contains(organizationVocab, w) {
			out = append(out, Entity{Value: w, Category: "organization", Confidence: organizationConfidence})
			seen[w] = struct{}{}
		}
	}
	return out
}

func contains(vocab []string, w string) bool {
	for _, v := range vocab {
		if v == w {
			return true
		}
	}
	return false
}
