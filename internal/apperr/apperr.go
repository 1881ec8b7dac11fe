// Package apperr defines the error kinds the engine surfaces to callers.
// Grounded on the teacher's internal/registry/store/errors.go, generalized
// to the full kind set the hybrid memory engine needs.
package apperr

import "fmt"

// Kind is one of the semantic error kinds from the engine's error taxonomy.
type Kind string

const (
	KindInvalidArgument       Kind = "invalid_argument"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindStoreIO               Kind = "store_io"
	KindPartialWrite          Kind = "partial_write"
	KindInternal              Kind = "internal"
)

// Error is a typed error carrying one of the engine's error kinds plus
// optional structured details for the response envelope's error_details.
type Error struct {
	kind    Kind
	message string
	details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's semantic kind.
func (e *Error) Kind() Kind { return e.kind }

// Details returns the structured error details, possibly nil.
func (e *Error) Details() map[string]interface{} { return e.details }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap creates an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// WithDetails attaches structured details and returns the same *Error for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.details = details
	return e
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(format string, args ...interface{}) *Error {
	return New(KindInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// DependencyUnavailable builds a KindDependencyUnavailable error.
func DependencyUnavailable(format string, args ...interface{}) *Error {
	return New(KindDependencyUnavailable, fmt.Sprintf(format, args...))
}

// StoreIO wraps a backend I/O failure as a KindStoreIO error.
func StoreIO(message string, cause error) *Error {
	return Wrap(KindStoreIO, message, cause)
}

// Internal wraps an unanticipated failure as a KindInternal error.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.kind
	}
	return KindInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
