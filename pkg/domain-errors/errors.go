// Package domainerrors defines coded errors shared across doctrine services.
//
// Services return these so transport layers can map failures to responses
// without inspecting error strings. Infrastructure facts (not found, expired)
// belong in store-level sentinel errors; this package is for domain outcomes.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and audit.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"

	// Doctrine enforcement outcomes.
	CodeContractViolation Code = "contract_violation"
	CodeToolBlacklisted   Code = "tool_blacklisted"
	CodeSystemLocked      Code = "system_locked"
	CodeRecoveryDenied    Code = "recovery_denied"
	CodeSinkDispatch      Code = "sink_dispatch_failed"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code    Code
	message string
	cause   error
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the classification code.
func (e *Error) Code() Code { return e.code }

// Message returns the message without the wrapped cause.
func (e *Error) Message() string { return e.message }

// Coder is implemented by error types that carry their own domain code.
// Doctrine's typed errors implement it so they map without re-wrapping.
type Coder interface {
	DomainCode() Code
}

// CodeOf walks the error chain and returns the first domain code found.
// Unknown errors classify as internal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	var c Coder
	if errors.As(err, &c) {
		return c.DomainCode()
	}
	return CodeInternal
}
