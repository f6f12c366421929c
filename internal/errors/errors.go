// Package errors provides the structured error taxonomy for the RAG engine.
//
// Every failure that crosses a package boundary is classified into a Kind so
// that callers can make an explicit policy decision (retry with backoff,
// bisect the batch, fall back, or fail) instead of string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for policy decisions.
type Kind string

const (
	// KindParseFailure indicates one file could not be parsed into chunks.
	// Policy: skip the file, continue the sync.
	KindParseFailure Kind = "PARSE_FAILURE"

	// KindTransient indicates a retryable provider failure (timeout, 5xx).
	// Policy: exponential backoff.
	KindTransient Kind = "TRANSIENT_PROVIDER"

	// KindRateLimited indicates the provider rejected the call with a quota
	// error. Policy: exponential backoff, same as transient.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindInvalidInput indicates the provider rejected the request body
	// (batch too large, malformed item). Policy: bisect the batch.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindDimensionMismatch indicates new vectors disagree with the stored
	// index dimension. Policy: discard the index and rebuild from scratch.
	KindDimensionMismatch Kind = "DIMENSION_MISMATCH"

	// KindContextTooLarge indicates the chat prompt exceeded the model's
	// context window. Policy: map-reduce fallback.
	KindContextTooLarge Kind = "CONTEXT_TOO_LARGE"

	// KindNoCorpus indicates the tenant has no indexed chunks. Not a real
	// error: callers return a fast "no context" response.
	KindNoCorpus Kind = "NO_CORPUS"

	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified engine error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "provider.embed"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HasKind reports whether the error chain carries the given Kind.
func HasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
