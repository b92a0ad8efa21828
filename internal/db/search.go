package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	Kinds        []string // pre-filter on the kind TAG field; empty = all
	K            int
	ReturnFields []string
}

// PatternQuery is the input for lexical search: an OR of extracted keywords
// matched against the title, body, and tags TEXT fields. Row priority
// (title > tags > body) comes from per-field weights set at index-creation
// time by the ingestion process; callers recompute final scores client-side.
type PatternQuery struct {
	IndexName    string
	Terms        []string
	Kinds        []string
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64 // KNN: cosine similarity rescaled to [0,1]; pattern: store rank score
	Fields map[string]string
}
