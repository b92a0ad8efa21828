package convlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type stubStore struct {
	docs    map[string][]byte
	expires map[string]time.Duration
	setErr  error
	scanErr error
	getErr  map[string]error
}

func newStubStore() *stubStore {
	return &stubStore{
		docs:    make(map[string][]byte),
		expires: make(map[string]time.Duration),
		getErr:  make(map[string]error),
	}
}

func (s *stubStore) JSONSet(_ context.Context, key, _ string, data []byte) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.docs[key] = data
	return nil
}

func (s *stubStore) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	if err := s.getErr[key]; err != nil {
		return nil, err
	}
	return s.docs[key], nil
}

func (s *stubStore) Scan(_ context.Context, _ string) ([]string, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *stubStore) Expire(_ context.Context, key string, ttl time.Duration, _ bool) error {
	s.expires[key] = ttl
	return nil
}

func TestAppend(t *testing.T) {
	store := newStubStore()
	repo := New(store, "foliorag:", 0, zap.NewNop())

	turn, err := repo.Append(context.Background(), "sess-1", "user", "what projects?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ulid.Parse(turn.ID); err != nil {
		t.Errorf("turn id %q is not a ULID: %v", turn.ID, err)
	}
	if turn.Kind != TurnKind {
		t.Errorf("kind = %q, want %q", turn.Kind, TurnKind)
	}
	if len(store.docs) != 1 {
		t.Fatalf("stored docs = %d", len(store.docs))
	}
	if len(store.expires) != 0 {
		t.Error("no expiry should be set with ttl 0")
	}
}

func TestAppend_SetsExpiry(t *testing.T) {
	store := newStubStore()
	repo := New(store, "foliorag:", time.Hour, zap.NewNop())

	turn, err := repo.Append(context.Background(), "sess-1", "user", "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	key := "foliorag:conversation:sess-1:" + turn.ID
	if store.expires[key] != time.Hour {
		t.Errorf("expiry = %v, want 1h", store.expires[key])
	}
}

func TestRecent(t *testing.T) {
	store := newStubStore()
	repo := New(store, "foliorag:", 0, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, body := range []string{"first", "second", "third", "fourth"} {
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		if _, err := repo.Append(ctx, "sess-1", "user", body, nil); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := repo.Recent(ctx, "sess-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(turns))
	}
	for i, want := range []string{"second", "third", "fourth"} {
		if turns[i].Body != want {
			t.Errorf("turns[%d].Body = %q, want %q", i, turns[i].Body, want)
		}
	}
}

func TestRecent_SkipsBrokenTurns(t *testing.T) {
	store := newStubStore()
	repo := New(store, "foliorag:", 0, zap.NewNop())
	ctx := context.Background()

	good, err := repo.Append(ctx, "sess-1", "user", "keep me", nil)
	if err != nil {
		t.Fatal(err)
	}
	bad, err := repo.Append(ctx, "sess-1", "assistant", "lose me", nil)
	if err != nil {
		t.Fatal(err)
	}
	store.getErr["foliorag:conversation:sess-1:"+bad.ID] = errors.New("gone")

	turns, err := repo.Recent(ctx, "sess-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].ID != good.ID {
		t.Errorf("turns = %+v, want only the loadable turn", turns)
	}
}

func TestRecent_Empty(t *testing.T) {
	repo := New(newStubStore(), "foliorag:", 0, zap.NewNop())

	turns, err := repo.Recent(context.Background(), "sess-1", 5)
	if err != nil || turns != nil {
		t.Errorf("turns = %v, err = %v", turns, err)
	}
	if got, _ := repo.Recent(context.Background(), "sess-1", 0); got != nil {
		t.Error("n=0 must return nil")
	}
}
