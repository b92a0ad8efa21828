package domain

// Origin identifies which retrieval path produced a chunk.
type Origin string

const (
	// OriginSemantic marks a chunk found by vector similarity search.
	OriginSemantic Origin = "semantic"
	// OriginLexical marks a chunk found by keyword/pattern search.
	OriginLexical Origin = "lexical"
	// OriginHybrid marks a chunk found by both retrieval paths.
	OriginHybrid Origin = "hybrid"
	// OriginConversation marks a chunk recalled from prior conversation turns.
	OriginConversation Origin = "conversation-recall"
)

// Chunk is a unit of retrievable information from the career corpus.
// Chunks are immutable records owned by the ingestion process; Relevance
// and Origin are per-query annotations set during a single search call.
type Chunk struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"` // experience, project, skills, conversation, ...
	Title       string         `json:"title,omitempty"`
	Body        string         `json:"body"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Vector      []float32      `json:"-"` // present only for semantically indexed chunks
	LexicalTags string         `json:"lexical_tags,omitempty"`
	Relevance   float64        `json:"relevance"`
	Origin      Origin         `json:"origin"`
}

// Key returns the stable merge key used by result fusion.
func (c *Chunk) Key() string {
	return c.Kind + ":" + c.ID
}

// AttrString reads a string attribute from the open metadata bag.
func (c *Chunk) AttrString(name string) (string, bool) {
	v, ok := c.Attributes[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
