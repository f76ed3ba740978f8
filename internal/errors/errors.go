// Package errors defines the coded errors that flow from the sources and
// stores up to the orchestrator and the HTTP layer.
//
// A source classifies its failures:
//
//	if resp.StatusCode == http.StatusUnauthorized {
//	    return errors.Unauthorized("list source rejected token")
//	}
//
// and the orchestrator decides what a failure means for the run:
//
//	switch {
//	case errors.IsAuth(err):
//	    return nil, err // surfaced, never retried
//	case errors.IsSoft(err):
//	    result.addError(entry, err) // counted, run continues
//	}
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Is and New mirror the standard library so callers need one import.
var (
	Is  = errors.Is
	New = errors.New
)

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeTokenExpired   Code = "TOKEN_EXPIRED"
	CodeInvalidFormat  Code = "INVALID_FORMAT"
	CodeNetworkFailure Code = "NETWORK_FAILURE"
	CodeTimeout        Code = "TIMEOUT"
	CodeValidation     Code = "VALIDATION"
	CodeInternal       Code = "INTERNAL"
)

var httpStatus = map[Code]int{
	CodeNotFound:       http.StatusNotFound,
	CodeConflict:       http.StatusConflict,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeTokenExpired:   http.StatusUnauthorized,
	CodeInvalidFormat:  http.StatusBadRequest,
	CodeValidation:     http.StatusBadRequest,
	CodeNetworkFailure: http.StatusBadGateway,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// HTTPStatus maps c to a response status. Unknown codes are 500.
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a Code, a message safe to show to API clients and an
// optional cause that stays out of responses.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Code, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus is shorthand for e.Code.HTTPStatus().
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// Sentinels for errors.Is. Only the Code is compared.
var (
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict       = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrTokenExpired   = &Error{Code: CodeTokenExpired, Message: "token expired"}
	ErrInvalidFormat  = &Error{Code: CodeInvalidFormat, Message: "invalid format"}
	ErrNetworkFailure = &Error{Code: CodeNetworkFailure, Message: "network failure"}
	ErrTimeout        = &Error{Code: CodeTimeout, Message: "timeout"}
	ErrValidation     = &Error{Code: CodeValidation, Message: "validation error"}
)

func coded(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func NotFound(msg string) *Error { return coded(CodeNotFound, msg) }

func Unauthorized(msg string) *Error { return coded(CodeUnauthorized, msg) }

func TokenExpired(msg string) *Error { return coded(CodeTokenExpired, msg) }

func InvalidFormat(msg string) *Error { return coded(CodeInvalidFormat, msg) }

func Validation(msg string) *Error { return coded(CodeValidation, msg) }

func Internal(msg string) *Error { return coded(CodeInternal, msg) }

func NotFoundf(format string, args ...any) *Error {
	return coded(CodeNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return coded(CodeConflict, fmt.Sprintf(format, args...))
}

func InvalidFormatf(format string, args ...any) *Error {
	return coded(CodeInvalidFormat, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return coded(CodeValidation, fmt.Sprintf(format, args...))
}

// ValidationWithDetails attaches per-field messages for the API response.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Wrap gives err a code and a client-facing message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// NetworkFailure wraps a failed round trip.
func NetworkFailure(err error, msg string) *Error { return Wrap(err, CodeNetworkFailure, msg) }

// FromTransport classifies an HTTP client error: deadlines and net
// timeouts become CodeTimeout, anything else CodeNetworkFailure.
func FromTransport(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, CodeTimeout, msg)
	}
	if ne, ok := errors.AsType[net.Error](err); ok && ne.Timeout() {
		return Wrap(err, CodeTimeout, msg)
	}
	return NetworkFailure(err, msg)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if e, ok := errors.AsType[*Error](err); ok {
		return e.Code
	}
	return CodeInternal
}

// IsAuth reports a credential failure. These abort a run instead of being counted.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrTokenExpired)
}

// IsSoft reports a transient transport failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNetworkFailure) || errors.Is(err, ErrTimeout)
}
