package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error returned by an engine operation.
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeHydrating indicates a command arrived before hydration finished.
	ErrCodeHydrating RuntimeErrorCode = "HYDRATING"

	// ErrCodeClosed indicates the engine has been closed.
	ErrCodeClosed RuntimeErrorCode = "CLOSED"
)

// ErrHydrating is returned by commands issued before Hydrate completes.
var ErrHydrating = &RuntimeError{Code: ErrCodeHydrating, Message: "engine is still hydrating"}

// ErrClosed is returned by commands issued after Close.
var ErrClosed = &RuntimeError{Code: ErrCodeClosed, Message: "engine is closed"}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsHydrating returns true if the error is a hydrating error.
// Uses errors.As to handle wrapped errors.
func IsHydrating(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeHydrating
	}
	return false
}

// IsClosed returns true if the error is a closed error.
// Uses errors.As to handle wrapped errors.
func IsClosed(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeClosed
	}
	return false
}
