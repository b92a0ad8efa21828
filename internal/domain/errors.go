package domain

import "errors"

// Sentinel errors shared between layers.
var (
	// ErrInvalidRequest marks a malformed search request, rejected before any I/O.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingUnavailable marks an upstream embedding failure with no fallback configured.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmbeddingProviderError marks a transient provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrDimensionMismatch marks disagreeing vector dimensions. This is a
	// configuration bug, not a transient condition.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCompletionProviderError marks a chat completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrRateLimited marks a request rejected by the embedding rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
)
