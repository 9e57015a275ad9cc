// Package errors defines the application error taxonomy and the HTTP error
// envelope written to clients. Every rejected or failed request maps to a
// stable code so dashboards can tell overload, shutdown, and backend failure
// apart without parsing messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to clients and metrics.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeServiceDraining   = "SERVICE_DRAINING"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeStoreUnauthorized = "STORE_UNAUTHORIZED"
	CodeStoreAmbiguous    = "STORE_AMBIGUOUS"
	CodeStoreError        = "STORE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is the application error envelope. The Code is stable API surface;
// Message is human-readable and safe to return to clients. The wrapped error
// carries internal detail for logs only.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches two envelopes by code so callers can use errors.Is with the
// New* helpers as sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// New creates an error envelope with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error envelope around an underlying cause.
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// Admission and lifecycle errors

func NewRateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

func NewServiceDraining(message string) *Error {
	return New(CodeServiceDraining, message)
}

// Store errors

func WrapStoreUnavailable(err error, message string) *Error {
	return Wrap(CodeStoreUnavailable, message, err)
}

func WrapStoreUnauthorized(err error, message string) *Error {
	return Wrap(CodeStoreUnauthorized, message, err)
}

func WrapStoreAmbiguous(err error, message string) *Error {
	return Wrap(CodeStoreAmbiguous, message, err)
}

func WrapStoreError(err error, message string) *Error {
	return Wrap(CodeStoreError, message, err)
}

// Transport errors

func NewNotFoundError(message string) *Error {
	return New(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *Error {
	return New(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *Error {
	return New(CodeInternal, message)
}

// Ensure normalizes any error into an *Error envelope. Unknown errors become
// INTERNAL_ERROR without leaking detail into the client-visible message.
func Ensure(err error) *Error {
	if err == nil {
		return NewInternalError("unexpected nil error")
	}
	var envelope *Error
	if errors.As(err, &envelope) && envelope != nil {
		return envelope
	}
	return Wrap(CodeInternal, "internal server error", err)
}

// Code returns the stable code for any error, normalizing as needed.
func Code(err error) string {
	return Ensure(err).Code
}

// HTTPStatusFromCode resolves the HTTP status corresponding to an error code.
// Store timeouts map to 504 and explicit store errors to 502 so callers can
// distinguish the two failure shapes.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceDraining:
		return http.StatusServiceUnavailable
	case CodeStoreUnavailable:
		return http.StatusGatewayTimeout
	case CodeStoreUnauthorized, CodeStoreAmbiguous, CodeStoreError:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus resolves the HTTP status for any error.
func HTTPStatus(err error) int {
	return HTTPStatusFromCode(Ensure(err).Code)
}
