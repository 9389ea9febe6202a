package summarize

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a chunk processing failure.
type ErrorKind string

const (
	// KindTransient covers timeouts, 5xx responses and network blips.
	KindTransient ErrorKind = "transient"
	// KindMalformedResponse means the response body failed to parse.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindShapeInvariant means the response parsed but violated the
	// declared schema contract.
	KindShapeInvariant ErrorKind = "shape_invariant"
	// KindCancelled means the caller aborted the whole pipeline.
	KindCancelled ErrorKind = "cancelled"
)

// ProcessingError is a terminal failure for one chunk.
type ProcessingError struct {
	Kind       ErrorKind
	ChunkIndex int
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("chunk %d: %s: %v", e.ChunkIndex, e.Kind, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// classify wraps an arbitrary request error into a ProcessingError.
func classify(err error, chunkIndex int) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	kind := KindTransient
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	return &ProcessingError{Kind: kind, ChunkIndex: chunkIndex, Err: err}
}

// retryable reports whether a chunk failure is worth another attempt.
// Cancellation is never retried; everything else, including a malformed
// response, gets the remaining attempt budget.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProcessingError
	if errors.As(err, &pe) && pe.Kind == KindCancelled {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
