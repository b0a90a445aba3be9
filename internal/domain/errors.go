package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories crossing component
// boundaries. Protocol-specific translation (HTTP status codes) happens
// in the adapters, never here.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindState      ErrorKind = "state"
	KindAnalyzer   ErrorKind = "analyzer"
	KindInternal   ErrorKind = "internal"
)

// Error is a categorized error returned as a value from the core components
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed or empty input
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown identifier
func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewStateError reports an operation that is illegal for the current status
func NewStateError(format string, args ...any) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// NewAnalyzerError wraps a per-item analyzer failure
func NewAnalyzerError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindAnalyzer, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewInternalError wraps an unexpected orchestration fault
func NewInternalError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the error kind, defaulting to KindInternal for
// uncategorized errors and "" for nil
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
