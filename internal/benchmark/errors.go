package benchmark

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies build failures. Kinds decide propagation:
// config validation aborts the whole build before any concept work,
// merge conflicts abort the merge, everything else is captured per
// concept or per descriptor pair and reported in skipped_concepts.
type ErrorKind string

const (
	KindConfigValidation    ErrorKind = "config_validation"    // Fatal pre-flight, aborts entire build
	KindSourceUnavailable   ErrorKind = "source_unavailable"   // Per-concept fatal
	KindEmbeddingService    ErrorKind = "embedding_service"    // Per-pair retryable, fatal after retry exhaustion
	KindThresholdDerivation ErrorKind = "threshold_derivation" // Per-pair fatal, non-branching work survives
	KindMergeConflict       ErrorKind = "merge_conflict"       // Fatal only when no concept produced usable data
	KindCancelled           ErrorKind = "cancelled"            // Build cancellation propagated to a concept task
	KindUnknown             ErrorKind = "unknown"
)

// BuildError is the error type threaded through benchmark builds.
// Callers use errors.As to recover the kind and scope. Stem/Branch are
// set for pair-scoped failures, Concept for concept-scoped ones.
type BuildError struct {
	Kind    ErrorKind `json:"kind"`
	Concept string    `json:"concept,omitempty"`
	Stem    string    `json:"stem,omitempty"`
	Branch  string    `json:"branch,omitempty"`
	Reason  string    `json:"reason"`
	Wrapped error     `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	scope := ""
	switch {
	case e.Stem != "" && e.Branch != "":
		scope = fmt.Sprintf(" [%s->%s]", e.Stem, e.Branch)
	case e.Concept != "":
		scope = fmt.Sprintf(" [%s]", e.Concept)
	}
	reason := e.Reason
	if reason == "" && e.Wrapped != nil {
		reason = e.Wrapped.Error()
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, scope, reason)
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *BuildError) Unwrap() error {
	return e.Wrapped
}

// Retryable reports whether the failure is transient. Only embedding
// service failures are worth retrying.
func (e *BuildError) Retryable() bool {
	return e.Kind == KindEmbeddingService
}

// NewConfigValidationError creates a fatal pre-flight validation error.
func NewConfigValidationError(format string, args ...interface{}) *BuildError {
	return &BuildError{
		Kind:   KindConfigValidation,
		Reason: fmt.Sprintf(format, args...),
	}
}

// NewSourceUnavailableError marks a concept whose source sentences
// could not be collected.
func NewSourceUnavailableError(concept string, err error) *BuildError {
	return &BuildError{
		Kind:    KindSourceUnavailable,
		Concept: concept,
		Reason:  "source sentences unavailable",
		Wrapped: err,
	}
}

// NewEmbeddingServiceError marks a transient embedding lookup failure
// for one descriptor pair.
func NewEmbeddingServiceError(stem, branch string, err error) *BuildError {
	return &BuildError{
		Kind:    KindEmbeddingService,
		Stem:    stem,
		Branch:  branch,
		Reason:  "embedding lookup failed",
		Wrapped: err,
	}
}

// NewThresholdDerivationError marks a pair whose Auto threshold could
// not be derived. The pair is dropped; other pairs and the concept's
// non-branching work continue.
func NewThresholdDerivationError(stem, branch, reason string) *BuildError {
	return &BuildError{
		Kind:   KindThresholdDerivation,
		Stem:   stem,
		Branch: branch,
		Reason: reason,
	}
}

// NewMergeConflictError marks a merge where no concept produced usable data.
func NewMergeConflictError(reason string) *BuildError {
	return &BuildError{
		Kind:   KindMergeConflict,
		Reason: reason,
	}
}

// NewCancelledError marks a concept task aborted by build cancellation.
func NewCancelledError(concept string, err error) *BuildError {
	return &BuildError{
		Kind:    KindCancelled,
		Concept: concept,
		Reason:  "build cancelled",
		Wrapped: err,
	}
}

// WrapConceptError coerces an arbitrary error into a concept-scoped
// BuildError. Existing BuildErrors keep their kind and gain the concept
// scope if they had none. Context cancellation maps to KindCancelled.
func WrapConceptError(concept string, err error) *BuildError {
	var be *BuildError
	if errors.As(err, &be) {
		if be.Concept == "" {
			be.Concept = concept
		}
		return be
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(concept, err)
	}
	return &BuildError{
		Kind:    KindUnknown,
		Concept: concept,
		Wrapped: err,
	}
}

// KindOf extracts the ErrorKind from any error. Context cancellation
// maps to KindCancelled even when unwrapped.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return false
}
