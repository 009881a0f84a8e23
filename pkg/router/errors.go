package router

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a router failure. Fallback decisions and HTTP mapping
// key off the kind, not the message.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindBackend    Kind = "backend"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error carries the model and operation that failed.
type Error struct {
	Kind    Kind   // failure class
	Model   string // model in play, if any
	Op      string // operation that failed
	Message string // human-readable message
	Err     error  // underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[router:%s] %s", e.Op, e.Message)
	if e.Model != "" {
		msg += fmt.Sprintf(" (model: %s)", e.Model)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is or wraps an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}

func newError(kind Kind, model, op, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Model:   model,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// classify maps an arbitrary dispatch error onto a Kind. Context errors
// take precedence over transport detail.
func classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindBackend
	}
}
