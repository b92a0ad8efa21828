package embedding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// rateWindow is the rolling window governing upstream embedding calls.
const rateWindow = time.Minute

// RateLimiter bounds upstream embedding calls by requests and tokens per
// rolling 60-second window. Counters reset atomically when the window
// elapses. Callers that would exceed a limit block until the window resets;
// the wait is bounded: after one full window wait without capacity the call
// fails with ErrRateLimited instead of retrying forever.
type RateLimiter struct {
	mu          sync.Mutex
	reqLimit    int // 0 = unlimited
	tokLimit    int // 0 = unlimited
	windowStart time.Time
	requests    int
	tokens      int
	logger      *zap.Logger

	now   func() time.Time // test seam
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. Zero limits disable the corresponding check.
func NewRateLimiter(requestsPerMinute, tokensPerMinute int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		reqLimit: requestsPerMinute,
		tokLimit: tokensPerMinute,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire reserves one request and estTokens from the current window,
// waiting at most one window rollover for capacity.
func (l *RateLimiter) Acquire(ctx context.Context, estTokens int) error {
	for attempt := 0; attempt < 2; attempt++ {
		wait, ok := l.tryReserve(estTokens)
		if ok {
			return nil
		}
		if attempt == 1 {
			break
		}

		l.logger.Debug("Rate limit reached, waiting for window reset",
			zap.Duration("wait", wait),
			zap.Int("est_tokens", estTokens),
		)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return domain.ErrRateLimited
}

// tryReserve records the request if it fits the window, otherwise returns
// the time until the window resets.
func (l *RateLimiter) tryReserve(estTokens int) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= rateWindow {
		l.windowStart = now
		l.requests = 0
		l.tokens = 0
	}

	reqOK := l.reqLimit == 0 || l.requests < l.reqLimit
	// An empty window always admits one request, even if it alone exceeds
	// the token limit; otherwise an oversized request could never proceed.
	tokOK := l.tokLimit == 0 || l.tokens+estTokens <= l.tokLimit || l.requests == 0

	if reqOK && tokOK {
		l.requests++
		l.tokens += estTokens
		return 0, true
	}

	return l.windowStart.Add(rateWindow).Sub(now), false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LimitedEmbedder is a decorator applying the rate limiter before the
// upstream call. It sits between the cache and the transport so cache hits
// never consume rate budget.
type LimitedEmbedder struct {
	inner   domain.Embedder
	limiter *RateLimiter
}

// NewLimitedEmbedder wraps inner with the rate limiter.
func NewLimitedEmbedder(inner domain.Embedder, limiter *RateLimiter) *LimitedEmbedder {
	return &LimitedEmbedder{inner: inner, limiter: limiter}
}

// Embed acquires rate budget (estimated from text length) and delegates.
func (e *LimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.limiter.Acquire(ctx, (len(text)+charsPerToken-1)/charsPerToken); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return e.inner.Embed(ctx, text)
}
