package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrDimensionMismatch is returned when a vector's dimensionality differs
	// from the index's fixed dimension. Vectors are never truncated or padded.
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrProviderFailure marks a transient embedding provider error
	// (unavailable or timed out). Retried with backoff, never surfaced to the
	// retrieval caller.
	ErrProviderFailure = goerr.New("embedding provider failure")

	// ErrProviderContract marks a batch size mismatch between provider input
	// and output. The batch is requeued once, then dropped.
	ErrProviderContract = goerr.New("embedding provider contract violation")

	// ErrIndexNotReady is recorded when retrieval runs before a successful
	// load. Callers receive an empty result, not this error.
	ErrIndexNotReady = goerr.New("index not ready")

	ErrMemoryNotFound    = goerr.New("memory not found")
	ErrInvalidMemoryType = goerr.New("invalid memory type")

	// ErrQuotaExceeded is returned on write when the configured live memory
	// count limit is reached.
	ErrQuotaExceeded = goerr.New("memory quota exceeded")

	// ErrRejectedByPolicy is returned on write when the admission policy
	// decides the content is not worth storing.
	ErrRejectedByPolicy = goerr.New("memory rejected by policy")
)
