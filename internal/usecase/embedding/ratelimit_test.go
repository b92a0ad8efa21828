package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// fakeClock drives the limiter deterministically: sleeping advances time.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newLimiterWithClock(reqLimit, tokLimit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewRateLimiter(reqLimit, tokLimit, zap.NewNop())
	l.now = func() time.Time { return clock.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		clock.sleeps = append(clock.sleeps, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return l, clock
}

func TestRateLimiter_UnderLimit(t *testing.T) {
	l, clock := newLimiterWithClock(3, 100)
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background(), 10); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("slept %v, want no waits", clock.sleeps)
	}
}

func TestRateLimiter_BlocksUntilWindowResets(t *testing.T) {
	l, clock := newLimiterWithClock(1, 0)

	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("second request should succeed after waiting: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly one bounded wait", clock.sleeps)
	}
	if clock.sleeps[0] > rateWindow {
		t.Errorf("wait %v exceeds the window", clock.sleeps[0])
	}
}

func TestRateLimiter_TokenLimit(t *testing.T) {
	l, clock := newLimiterWithClock(0, 100)

	if err := l.Acquire(context.Background(), 90); err != nil {
		t.Fatalf("first request: %v", err)
	}
	// 90 + 20 > 100: must wait for the window to reset.
	if err := l.Acquire(context.Background(), 20); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Errorf("sleeps = %v, want one wait", clock.sleeps)
	}
}

func TestRateLimiter_OversizedRequestAdmittedIntoEmptyWindow(t *testing.T) {
	l, clock := newLimiterWithClock(0, 100)

	if err := l.Acquire(context.Background(), 500); err != nil {
		t.Fatalf("oversized request into empty window: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", clock.sleeps)
	}
}

func TestRateLimiter_WindowRolloverResetsCounters(t *testing.T) {
	l, clock := newLimiterWithClock(1, 0)

	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(rateWindow + time.Second)
	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("request after rollover: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none after rollover", clock.sleeps)
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	l, _ := newLimiterWithClock(1, 0)
	l.sleep = sleepCtx // real sleep, cancelled immediately

	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLimitedEmbedder_Delegates(t *testing.T) {
	stub := &stubEmbedder{dim: 2}
	l, _ := newLimiterWithClock(10, 0)
	e := NewLimitedEmbedder(stub, l)

	res, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("dim = %d", len(res.Embedding))
	}
}

func TestLimitedEmbedder_SurfacesRateLimit(t *testing.T) {
	// One request allowed; the second sees a still-full window because the
	// fake sleep does not advance past it.
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewRateLimiter(1, 0, zap.NewNop())
	l.now = func() time.Time { return clock.now }
	l.sleep = func(context.Context, time.Duration) error { return nil } // window never rolls over

	e := NewLimitedEmbedder(&stubEmbedder{dim: 2}, l)
	if _, err := e.Embed(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "b"); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}
