package kernel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies kernel failures for the tool boundary.
// Every failed operation maps to exactly one kind.
type ErrorKind string

const (
	// KindVariableNotFound is returned when a namespace entry does not exist.
	KindVariableNotFound ErrorKind = "variable_not_found"

	// KindQuotaExceeded is returned when a load would push a session past its byte quota.
	KindQuotaExceeded ErrorKind = "quota_exceeded"

	// KindHandleNotFound is returned when a handle token is unknown or its session was evicted.
	KindHandleNotFound ErrorKind = "handle_not_found"

	// KindHandleStale is returned when a handle's bound entry has been unloaded.
	// The token itself survives; only the binding target is gone.
	KindHandleStale ErrorKind = "handle_stale"

	// KindInvalidPattern is returned when a scan pattern does not compile.
	KindInvalidPattern ErrorKind = "invalid_pattern"

	// KindInvalidArgument is returned for out-of-range or missing arguments.
	KindInvalidArgument ErrorKind = "invalid_argument"

	// KindCapabilityDenied is returned when a script uses a capability
	// outside the sandbox allow-list.
	KindCapabilityDenied ErrorKind = "capability_denied"

	// KindExecutionError is returned when a script faults at runtime.
	KindExecutionError ErrorKind = "execution_error"

	// KindTimeout is returned when a script exceeds its execution deadline.
	KindTimeout ErrorKind = "timeout"
)

// Error is the structured failure type crossing the tool boundary.
// Context carries operation-specific detail such as the list of
// available variable names.
type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a kernel error with the given kind and message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// With attaches a context value and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsKind reports whether err is a kernel error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ke *Error
	return errors.As(err, &ke) && ke.Kind == kind
}

// errVariableNotFound builds the standard missing-entry error,
// including the names currently available in the session.
func errVariableNotFound(name string, available []string) *Error {
	return NewError(KindVariableNotFound, "variable %q not loaded", name).
		With("name", name).
		With("available", available)
}
