package remote

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sync collaborator errors. The string values double as
// the wire codes in {"error":{"code","message"}} bodies.
type ErrorCode string

const (
	// CodeInvalidRequest indicates a malformed request body.
	CodeInvalidRequest ErrorCode = "invalid_request"

	// CodeInvalidDigest indicates a snapshot whose digest does not match its
	// stat fields.
	CodeInvalidDigest ErrorCode = "invalid_digest"

	// CodeUnauthorized indicates a missing, expired or rejected credential.
	CodeUnauthorized ErrorCode = "unauthorized"

	// CodeNotFound indicates no ranking exists for the device yet.
	CodeNotFound ErrorCode = "not_found"

	// CodeServer indicates a server-side failure.
	CodeServer ErrorCode = "server_error"

	// CodeTransport indicates the request never produced a response.
	CodeTransport ErrorCode = "transport"
)

// Error is returned by the sync collaborators.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Status is the HTTP status, or 0 for transport errors.
	Status int

	// Transient reports whether retrying later may succeed.
	Transient bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorBody is the JSON error envelope used by the server.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the payload of ErrorBody.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IsTransient returns true if err is worth retrying later.
// Errors that are not *Error (for example a context deadline) are treated as
// transient.
func IsTransient(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Transient
	}
	return err != nil
}

// IsUnauthorized returns true if the server rejected the credential.
func IsUnauthorized(err error) bool {
	return hasCode(err, CodeUnauthorized)
}

// IsNotFound returns true if the server has no ranking for the device.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func transportError(op string, err error) *Error {
	return &Error{
		Code:      CodeTransport,
		Message:   op,
		Transient: true,
		Err:       err,
	}
}
