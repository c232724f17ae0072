// Package errors provides structured error types for deke.
// It implements error classification and wrapping for the policy interpreter
// and the tooling built around it.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindLex indicates the program text contains an invalid token.
	KindLex
	// KindParse indicates a grammar violation in the program.
	KindParse
	// KindUnknownFunction indicates a call to a name with no binding.
	KindUnknownFunction
	// KindKindMismatch indicates a function used where a value was expected, or vice versa.
	KindKindMismatch
	// KindLookup indicates a JSON pointer did not resolve against the context.
	KindLookup
	// KindType indicates a builtin received the wrong number or kind of arguments.
	KindType
	// KindNotBool indicates a policy did not reduce to a boolean.
	KindNotBool
	// KindInternal indicates an internal consistency error.
	KindInternal
	// KindExplain indicates a policy too malformed to describe.
	KindExplain
	// KindConfig indicates a configuration error.
	KindConfig
	// KindIO indicates a file I/O error.
	KindIO
	// KindValidation indicates a validation error.
	KindValidation
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindCanceled indicates the operation was canceled.
	KindCanceled
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex"
	case KindParse:
		return "parse"
	case KindUnknownFunction:
		return "unknown_function"
	case KindKindMismatch:
		return "kind_mismatch"
	case KindLookup:
		return "lookup"
	case KindType:
		return "type"
	case KindNotBool:
		return "not_bool"
	case KindInternal:
		return "internal"
	case KindExplain:
		return "explain"
	case KindConfig:
		return "configuration"
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the standard error type for deke.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Details contains additional context about the error, such as
	// a source position or the JSON pointer that failed.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For *Error types, it checks if both the Kind and Op match.
// For sentinel errors (errors without Op), only Kind is compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key, if any.
func (e *Error) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// GetKind returns the Kind of an error.
// If the error is not an *Error, it returns KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// As is errors.As, re-exported so callers importing this package
// under the name "errors" keep access to it.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Common error constructors for frequently used error types.

// Lex creates a lexing error.
func Lex(op, message string) *Error {
	return &Error{Kind: KindLex, Op: op, Message: message}
}

// Parse creates a parse error.
func Parse(op, message string) *Error {
	return &Error{Kind: KindParse, Op: op, Message: message}
}

// Lookup creates a JSON pointer lookup error.
func Lookup(op, message string) *Error {
	return &Error{Kind: KindLookup, Op: op, Message: message}
}

// LookupWrap wraps an error as a JSON pointer lookup error.
func LookupWrap(err error, op, message string) *Error {
	return Wrap(err, KindLookup, op, message)
}

// Type creates a builtin argument error.
func Type(op, message string) *Error {
	return &Error{Kind: KindType, Op: op, Message: message}
}

// Typef creates a builtin argument error with a formatted message.
func Typef(op, format string, args ...any) *Error {
	return &Error{Kind: KindType, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Explain creates an explanation error.
func Explain(op, message string) *Error {
	return &Error{Kind: KindExplain, Op: op, Message: message}
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message}
}

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// ValidationWrap wraps an error as a validation error.
func ValidationWrap(err error, op, message string) *Error {
	return Wrap(err, KindValidation, op, message)
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// IO creates an I/O error.
func IO(op, message string) *Error {
	return &Error{Kind: KindIO, Op: op, Message: message}
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// Canceled wraps a context error as a cancellation.
func Canceled(err error, op string) *Error {
	return Wrap(err, KindCanceled, op, "operation canceled")
}
