package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

const codeRateLimited = "RATE_LIMITED"

// APIError is the body of every non-2xx response. It satisfies huma.StatusError.
type APIError struct { //nolint:revive // exported name is part of the OpenAPI schema
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Per-field messages or other context"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

// ContentType forces JSON regardless of the negotiated type.
func (e *APIError) ContentType(string) string { return "application/json" }

// RegisterErrorHandler replaces huma.NewError so coded errors keep their code
// and details. Must run before any route is registered.
func RegisterErrorHandler() {
	huma.NewError = newStatusError
}

func newStatusError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		if de, ok := errors.AsType[*domainerrors.Error](err); ok {
			return &APIError{
				status:  de.HTTPStatus(),
				Code:    string(de.Code),
				Message: de.Message,
				Details: de.Details,
			}
		}
	}

	out := &APIError{status: status, Code: statusToCode(status), Message: message}
	// Huma reports schema failures as 422 with one error per location.
	if status == http.StatusUnprocessableEntity && len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		out.Details = msgs
	}
	return out
}

// toAPIError converts a handler error so the response status follows its
// domain code. Uncoded errors become a 500 without leaking their text.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := errors.AsType[huma.StatusError](err); ok {
		return se
	}
	code := domainerrors.CodeOf(err)
	if code == domainerrors.CodeInternal {
		return huma.NewError(http.StatusInternalServerError, "internal error", err)
	}
	return huma.NewError(code.HTTPStatus(), err.Error(), err)
}

func statusToCode(status int) string {
	var code domainerrors.Code
	switch status {
	case http.StatusTooManyRequests:
		return codeRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = domainerrors.CodeValidation
	case http.StatusUnauthorized:
		code = domainerrors.CodeUnauthorized
	case http.StatusNotFound:
		code = domainerrors.CodeNotFound
	case http.StatusConflict:
		code = domainerrors.CodeConflict
	default:
		code = domainerrors.CodeInternal
	}
	return string(code)
}
