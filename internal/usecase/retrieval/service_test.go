package retrieval

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
)

type stubEmbedder struct {
	vec      []float32
	fallback bool
	err      error
	calls    atomic.Int32
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vec, Fallback: s.fallback}, nil
}

type stubSemantic struct {
	chunks     []domain.Chunk
	convChunks []domain.Chunk
	err        error
	calls      atomic.Int32
	convCalls  atomic.Int32
}

func (s *stubSemantic) Search(
	_ context.Context, _ []float32, _ []string, _ float64, _ int,
) ([]domain.Chunk, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Chunk(nil), s.chunks...), nil
}

func (s *stubSemantic) SearchConversation(
	_ context.Context, _ []float32, _ float64, _ int,
) ([]domain.Chunk, error) {
	s.convCalls.Add(1)
	return append([]domain.Chunk(nil), s.convChunks...), nil
}

type stubLexical struct {
	chunks []domain.Chunk
	err    error
	calls  atomic.Int32
}

func (s *stubLexical) Search(
	_ context.Context, _ []string, _ []string, _ int,
) ([]domain.Chunk, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Chunk(nil), s.chunks...), nil
}

type stubCache struct {
	mu      sync.Mutex
	entries map[string]*domain.SearchOutcome
	gets    int
	puts    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*domain.SearchOutcome)}
}

// Get and Put hand out copies, like the JSON round-trip of the real cache,
// so callers never share a mutable outcome.
func (c *stubCache) Get(_ context.Context, fp string) (*domain.SearchOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	o, ok := c.entries[fp]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (c *stubCache) Put(_ context.Context, fp string, o *domain.SearchOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	cp := *o
	c.entries[fp] = &cp
}

func testOptions() Options {
	return Options{
		SemanticWeight:     0.7,
		KeywordWeight:      0.3,
		RelevanceThreshold: 0.5,
		FallbackDiscount:   0.5,
		MaxResults:         10,
	}
}

func chunk(id, kind string, score float64, origin domain.Origin) domain.Chunk {
	return domain.Chunk{ID: id, Kind: kind, Body: "body of " + id, Relevance: score, Origin: origin}
}

func TestSearch_InvalidRequest(t *testing.T) {
	svc := New(&stubEmbedder{}, &stubSemantic{}, &stubLexical{}, nil, testOptions(), zap.NewNop())

	_, err := svc.Search(context.Background(), &domain.SearchRequest{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestSearch_HybridMerge(t *testing.T) {
	sem := &stubSemantic{chunks: []domain.Chunk{chunk("p1", "projects", 0.8, domain.OriginSemantic)}}
	lex := &stubLexical{chunks: []domain.Chunk{
		chunk("p1", "projects", 0.6, domain.OriginLexical),
		chunk("p2", "projects", 0.9, domain.OriginLexical),
	}}
	svc := New(&stubEmbedder{vec: []float32{1, 0}}, sem, lex, nil, testOptions(), zap.NewNop())

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{Query: "projects built"})
	if err != nil {
		t.Fatal(err)
	}

	// p1: 0.8*0.7 + 0.6*0.3 = 0.74 hybrid. p2: 0.9*0.3 = 0.27, under the floor.
	if len(outcome.Chunks) != 1 {
		t.Fatalf("chunks = %+v, want only the hybrid chunk", outcome.Chunks)
	}
	got := outcome.Chunks[0]
	if got.ID != "p1" || got.Origin != domain.OriginHybrid {
		t.Errorf("top = %+v", got)
	}
	if math.Abs(got.Relevance-0.74) > 1e-9 {
		t.Errorf("relevance = %f, want 0.74", got.Relevance)
	}
	if outcome.Semantic != 1 || outcome.Keyword != 2 || outcome.Merged != 2 {
		t.Errorf("stats = %d/%d/%d", outcome.Semantic, outcome.Keyword, outcome.Merged)
	}
	if outcome.Elapsed <= 0 {
		t.Error("elapsed not recorded")
	}
}

func TestSearch_SemanticFailureDegrades(t *testing.T) {
	lex := &stubLexical{chunks: []domain.Chunk{chunk("s1", "skills", 0.9, domain.OriginLexical)}}
	svc := New(
		&stubEmbedder{err: domain.ErrEmbeddingUnavailable},
		&stubSemantic{}, lex, nil,
		Options{SemanticWeight: 0.7, KeywordWeight: 0.3, RelevanceThreshold: 0.2, MaxResults: 10},
		zap.NewNop(),
	)

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{Query: "golang skills"})
	if err != nil {
		t.Fatalf("path failure must not fail the search: %v", err)
	}
	if len(outcome.Chunks) != 1 || outcome.Chunks[0].ID != "s1" {
		t.Errorf("chunks = %+v, want the keyword hit", outcome.Chunks)
	}
}

func TestSearch_BothPathsFailed(t *testing.T) {
	svc := New(
		&stubEmbedder{err: errors.New("provider down")},
		&stubSemantic{}, &stubLexical{err: errors.New("index gone")}, nil,
		testOptions(), zap.NewNop(),
	)

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{Query: "anything at all"})
	if err != nil {
		t.Fatalf("err = %v, want graceful empty outcome", err)
	}
	if outcome.TotalResults != 0 || len(outcome.Chunks) != 0 {
		t.Errorf("outcome = %+v, want empty", outcome)
	}
}

func TestSearch_FallbackDiscount(t *testing.T) {
	sem := &stubSemantic{chunks: []domain.Chunk{chunk("p1", "projects", 0.9, domain.OriginSemantic)}}
	opts := testOptions()
	opts.RelevanceThreshold = 0
	svc := New(&stubEmbedder{vec: []float32{1, 0}, fallback: true}, sem, &stubLexical{}, nil, opts, zap.NewNop())

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{Query: "projects"})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Chunks) != 1 {
		t.Fatalf("chunks = %+v", outcome.Chunks)
	}
	// 0.9 discounted to 0.45, then weighted: 0.45*0.7 = 0.315.
	if got := outcome.Chunks[0].Relevance; math.Abs(got-0.315) > 1e-9 {
		t.Errorf("relevance = %f, want 0.315", got)
	}
}

func TestSearch_CacheRoundTrip(t *testing.T) {
	sem := &stubSemantic{chunks: []domain.Chunk{chunk("p1", "projects", 0.9, domain.OriginSemantic)}}
	cache := newStubCache()
	svc := New(&stubEmbedder{vec: []float32{1, 0}}, sem, &stubLexical{}, cache, testOptions(), zap.NewNop())

	req := func() *domain.SearchRequest { return &domain.SearchRequest{Query: "projects"} }

	first, err := svc.Search(context.Background(), req())
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHit {
		t.Error("first call must be a miss")
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d", cache.puts)
	}

	second, err := svc.Search(context.Background(), req())
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("second call must be a hit")
	}
	if sem.calls.Load() != 1 {
		t.Errorf("semantic calls = %d, want 1 (hit skips retrieval)", sem.calls.Load())
	}
}

func TestSearch_ConversationRecall(t *testing.T) {
	sem := &stubSemantic{
		convChunks: []domain.Chunk{chunk("t1", "conversation", 0.95, domain.OriginConversation)},
	}
	opts := testOptions()
	opts.RelevanceThreshold = 0
	svc := New(&stubEmbedder{vec: []float32{1, 0}}, sem, &stubLexical{}, nil, opts, zap.NewNop())

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{
		Query:              "what did we discuss",
		Semantic:           true,
		SearchConversation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sem.convCalls.Load() != 1 {
		t.Fatalf("conversation calls = %d", sem.convCalls.Load())
	}
	if len(outcome.Chunks) != 1 || outcome.Chunks[0].Origin != domain.OriginConversation {
		t.Errorf("chunks = %+v", outcome.Chunks)
	}
}

func TestSearch_ExpansionSearchesEachVariant(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	sem := &stubSemantic{}
	lex := &stubLexical{}
	svc := New(emb, sem, lex, nil, testOptions(), zap.NewNop())

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{
		Query:       "skills overview",
		ExpandQuery: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Expansions) == 0 {
		t.Fatal("no expansions recorded for an expandable query")
	}
	wantVariants := int32(1 + len(outcome.Expansions))
	if emb.calls.Load() != wantVariants {
		t.Errorf("embed calls = %d, want %d", emb.calls.Load(), wantVariants)
	}
	if sem.calls.Load() != wantVariants || lex.calls.Load() != wantVariants {
		t.Errorf("path calls = %d/%d, want %d each", sem.calls.Load(), lex.calls.Load(), wantVariants)
	}
}

func TestSearch_ConcurrentIdenticalRequests(t *testing.T) {
	sem := &stubSemantic{chunks: []domain.Chunk{chunk("p1", "projects", 0.8, domain.OriginSemantic)}}
	lex := &stubLexical{chunks: []domain.Chunk{chunk("p2", "projects", 0.9, domain.OriginLexical)}}
	cache := newStubCache()
	svc := New(&stubEmbedder{vec: []float32{1, 0}}, sem, lex, cache, testOptions(), zap.NewNop())

	const callers = 2
	outcomes := make([]*domain.SearchOutcome, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Search(context.Background(),
				&domain.SearchRequest{Query: "projects built"})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	// Identical in-flight requests are not single-flighted; each caller may
	// run the full pipeline and write the cache, but the content must agree.
	if !reflect.DeepEqual(outcomes[0].Chunks, outcomes[1].Chunks) {
		t.Errorf("chunks diverged:\n%+v\n%+v", outcomes[0].Chunks, outcomes[1].Chunks)
	}
	if outcomes[0].TotalResults != outcomes[1].TotalResults {
		t.Errorf("totals diverged: %d vs %d", outcomes[0].TotalResults, outcomes[1].TotalResults)
	}

	cache.mu.Lock()
	puts := cache.puts
	cache.mu.Unlock()
	if puts < 1 || puts > callers {
		t.Errorf("cache puts = %d, want between 1 and %d", puts, callers)
	}
}

func TestSearch_IntentRecorded(t *testing.T) {
	svc := New(&stubEmbedder{vec: []float32{1, 0}}, &stubSemantic{}, &stubLexical{}, nil,
		testOptions(), zap.NewNop())

	outcome, err := svc.Search(context.Background(), &domain.SearchRequest{
		Query:        "where did you work before",
		DetectIntent: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Intent == "" {
		t.Error("intent not recorded")
	}
}
