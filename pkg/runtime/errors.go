// Package runtime wires the cognitive components into a running guardian
// council and exposes the two entry points outer layers call: HandleTurn
// for conversation and HandleSystemEvent for cross-subsystem injections.
package runtime

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownProvider indicates an unrecognized provider name in the
	// configuration.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrClosed indicates an operation on a closed runtime.
	ErrClosed = errors.New("runtime closed")
)

// RuntimeError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &RuntimeError{
//	    Op:  "HandleTurn",
//	    Err: ErrClosed,
//	}
//	// Error() returns: "mindcore: HandleTurn: runtime closed"
type RuntimeError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "mindcore: <Op>: <Err>"
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("mindcore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with RuntimeError.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewRuntimeError("HandleTurn", err)
//	}
func NewRuntimeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{
		Op:  op,
		Err: err,
	}
}
