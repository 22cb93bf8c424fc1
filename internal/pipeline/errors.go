package pipeline

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// ErrCodeNextCalledMultipleTimes indicates a middleware invoked next twice.
	ErrCodeNextCalledMultipleTimes ErrorCode = "NEXT_CALLED_MULTIPLE_TIMES"

	// ErrCodeUnknownOperation indicates a name that was never declared.
	ErrCodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"

	// ErrCodeUnknownHook indicates a plugin hook name with no matching operation.
	ErrCodeUnknownHook ErrorCode = "UNKNOWN_HOOK"

	// ErrCodeHookKindMismatch indicates a before-hook registered under an
	// after-hook name or the reverse.
	ErrCodeHookKindMismatch ErrorCode = "HOOK_KIND_MISMATCH"

	// ErrCodeAborted is used when a hook aborts without supplying an error.
	ErrCodeAborted ErrorCode = "ABORTED"

	// ErrCodeUnexpectedType indicates a result of the wrong Go type.
	ErrCodeUnexpectedType ErrorCode = "UNEXPECTED_TYPE"
)

// Error is a pipeline error with a code and the operation or hook it concerns.
type Error struct {
	Code ErrorCode

	// Name is the operation or hook name involved, if any.
	Name string

	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinel values below
// work with errors.Is regardless of Name and Message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNextCalledMultipleTimes = &Error{Code: ErrCodeNextCalledMultipleTimes, Message: "next() called multiple times"}
	ErrUnknownOperation        = &Error{Code: ErrCodeUnknownOperation, Message: "operation not declared"}
	ErrUnknownHook             = &Error{Code: ErrCodeUnknownHook, Message: "no operation for hook"}
	ErrHookKindMismatch        = &Error{Code: ErrCodeHookKindMismatch, Message: "hook kind does not match its name"}
	ErrAborted                 = &Error{Code: ErrCodeAborted, Message: "aborted by hook"}
	ErrUnexpectedType          = &Error{Code: ErrCodeUnexpectedType, Message: "unexpected result type"}
)

// NewError builds a coded pipeline error.
func NewError(code ErrorCode, name, message string) *Error {
	return &Error{Code: code, Name: name, Message: message}
}

// IsNextCalledMultipleTimes reports whether err comes from a middleware
// calling next more than once. Uses errors.As to handle wrapped errors.
func IsNextCalledMultipleTimes(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNextCalledMultipleTimes
	}
	return false
}

// IsUnknownOperation reports whether err names an undeclared operation.
func IsUnknownOperation(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeUnknownOperation
	}
	return false
}

// As converts an operation result to T. A nil result yields the zero T.
func As[T any](value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, NewError(ErrCodeUnexpectedType, "",
			fmt.Sprintf("expected %T, got %T (value: %v)", zero, value, value))
	}
	return typed, nil
}
