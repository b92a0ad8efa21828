package lexical

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/db"
	"github.com/folio-cloud/foliorag/internal/domain"
)

type stubSearcher struct {
	byIndex map[string]*db.SearchResult
	errs    map[string]error
	queries []*db.PatternQuery
}

func (s *stubSearcher) SearchPattern(_ context.Context, q *db.PatternQuery) (*db.SearchResult, error) {
	s.queries = append(s.queries, q)
	if err := s.errs[q.IndexName]; err != nil {
		return nil, err
	}
	if res, ok := s.byIndex[q.IndexName]; ok {
		return res, nil
	}
	return &db.SearchResult{}, nil
}

func entry(key, kind, title, body, tags string) db.SearchEntry {
	return db.SearchEntry{
		Key:    key,
		Fields: map[string]string{"kind": kind, "title": title, "body": body, "tags": tags},
	}
}

func TestScore(t *testing.T) {
	chunk := &domain.Chunk{
		Title:       "Backend work",
		Body:        "Built microservices with Go and Redis.",
		LexicalTags: "golang,backend,distributed",
	}

	tests := []struct {
		name     string
		keywords []string
		want     float64
	}{
		{"exact content keyword", []string{"redis"}, 1.0},
		{"tag match", []string{"golang"}, 0.7},
		{"body substring", []string{"microservice"}, 0.5},
		{"no match", []string{"kubernetes"}, 0},
		{"mixed", []string{"redis", "golang", "kubernetes"}, (1.0 + 0.7) / 3},
		{"empty keywords", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.keywords, chunk)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score = %f, want %f", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Score %f out of [0,1]", got)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	chunk := &domain.Chunk{Body: "Go and Redis", LexicalTags: "golang"}
	kws := []string{"redis", "golang"}
	first := Score(kws, chunk)
	for i := 0; i < 5; i++ {
		if Score(kws, chunk) != first {
			t.Fatal("Score is not deterministic")
		}
	}
}

func TestSearch_RescoresClientSide(t *testing.T) {
	stub := &stubSearcher{byIndex: map[string]*db.SearchResult{
		"idx:chunks": {Entries: []db.SearchEntry{
			entry("foliorag:chunk:1", "skills", "", "Go and Redis experience.", ""),
		}},
	}}
	r := New(stub, "idx:chunks", "", zap.NewNop())

	chunks, err := r.Search(context.Background(), []string{"redis"}, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0].Relevance != 1.0 {
		t.Errorf("relevance = %f, want the recomputed score 1.0", chunks[0].Relevance)
	}
	if chunks[0].Origin != domain.OriginLexical {
		t.Errorf("origin = %q", chunks[0].Origin)
	}
}

func TestSearch_SecondaryTopUp(t *testing.T) {
	stub := &stubSearcher{byIndex: map[string]*db.SearchResult{
		"idx:chunks": {Entries: []db.SearchEntry{
			entry("foliorag:chunk:1", "skills", "", "redis", ""),
		}},
		"idx:facts": {Entries: []db.SearchEntry{
			entry("foliorag:fact:9", "fact", "", "more redis", ""),
		}},
	}}
	r := New(stub, "idx:chunks", "idx:facts", zap.NewNop())

	chunks, err := r.Search(context.Background(), []string{"redis"}, nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want primary + top-up", len(chunks))
	}
	// Secondary query asks only for the remainder.
	if got := stub.queries[1]; got.IndexName != "idx:facts" || got.Limit != 4 {
		t.Errorf("secondary query = %+v", got)
	}
}

func TestSearch_NoTopUpWhenPrimaryFull(t *testing.T) {
	stub := &stubSearcher{byIndex: map[string]*db.SearchResult{
		"idx:chunks": {Entries: []db.SearchEntry{
			entry("foliorag:chunk:1", "skills", "", "redis", ""),
		}},
	}}
	r := New(stub, "idx:chunks", "idx:facts", zap.NewNop())

	if _, err := r.Search(context.Background(), []string{"redis"}, nil, 1); err != nil {
		t.Fatal(err)
	}
	if len(stub.queries) != 1 {
		t.Errorf("queries = %d, want 1 (primary satisfied the limit)", len(stub.queries))
	}
}

func TestSearch_SecondaryFailureIsSoft(t *testing.T) {
	stub := &stubSearcher{
		byIndex: map[string]*db.SearchResult{
			"idx:chunks": {Entries: []db.SearchEntry{
				entry("foliorag:chunk:1", "skills", "", "redis", ""),
			}},
		},
		errs: map[string]error{"idx:facts": errors.New("index missing")},
	}
	r := New(stub, "idx:chunks", "idx:facts", zap.NewNop())

	chunks, err := r.Search(context.Background(), []string{"redis"}, nil, 5)
	if err != nil {
		t.Fatalf("secondary failure must not fail the search: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("chunks = %d", len(chunks))
	}
}

func TestSearch_EmptyKeywords(t *testing.T) {
	stub := &stubSearcher{}
	r := New(stub, "idx:chunks", "idx:facts", zap.NewNop())

	chunks, err := r.Search(context.Background(), nil, nil, 5)
	if err != nil || chunks != nil {
		t.Errorf("chunks = %v, err = %v", chunks, err)
	}
	if len(stub.queries) != 0 {
		t.Error("no query should be issued without keywords")
	}
}
