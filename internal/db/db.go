package db

import (
	"context"
	"time"
)

// Store is the datastore facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces (ISP), main wires the facade.
type Store interface {
	Pinger
	KVStore
	JSONStore
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks datastore connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides the cache surface: simple key-value operations that
// must fail soft at the call sites (a cache outage never blocks a search).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelPattern(ctx context.Context, pattern string) (int, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// JSONStore provides JSON document operations (conversation turns).
type JSONStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// Searcher provides search primitives over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchPattern(ctx context.Context, q *PatternQuery) (*SearchResult, error)
}
