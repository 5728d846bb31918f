package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the user-facing categories
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_FAILED"
	case KindAuthentication:
		return "UNAUTHORIZED"
	case KindAuthorization:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}

// FieldIssue describes a single invalid input field
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error raised by services. Message is safe to show to callers,
// Err carries the internal cause and is never rendered outside development mode.
type Error struct {
	Kind      Kind
	Message   string
	Issues    []FieldIssue
	Retryable bool
	Err       error
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

// Validation reports malformed or out-of-range input
func Validation(message string, issues ...FieldIssue) *Error {
	return &Error{Kind: KindValidation, Message: message, Issues: issues}
}

// Unauthenticated reports a missing or invalid caller identity
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Forbidden reports an authenticated caller acting on a resource they do not own
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound reports a referenced listing, match or user that does not exist
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict reports a violated state pre-condition
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Busy reports a conflict with a concurrent request; the caller may retry
func Busy(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Retryable: true, Err: cause}
}

// Unexpected wraps a storage or infrastructure failure
func Unexpected(message string, cause error) *Error {
	return &Error{Kind: KindUnexpected, Message: message, Err: cause}
}

// KindOf returns the kind of err, KindUnexpected for untyped errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
