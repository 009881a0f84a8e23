package rag

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine failure. Only the ingest and config paths
// surface errors; retrieval and generation degrade inside the Answer.
type Kind string

const (
	KindValidation Kind = "validation"
	KindBackend    Kind = "backend"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// EngineError carries the operation and collection that failed.
type EngineError struct {
	Kind       Kind   // failure class
	Op         string // operation that failed
	Collection string // collection in play, if any
	Message    string // human-readable message
	Err        error  // underlying error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[rag:%s] %s", e.Op, e.Message)
	if e.Collection != "" {
		msg += fmt.Sprintf(" (collection: %s)", e.Collection)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is or wraps an EngineError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Kind == kind
}

func newEngineError(kind Kind, op, collection, message string, err error) *EngineError {
	return &EngineError{
		Kind:       kind,
		Op:         op,
		Collection: collection,
		Message:    message,
		Err:        err,
	}
}

// classifyErr maps an arbitrary backend error onto a Kind. Context errors
// take precedence over transport detail.
func classifyErr(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindBackend
	}
}
