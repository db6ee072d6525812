// Package errors provides structured API errors that carry a category,
// a machine-readable code and log context, and map onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the coarse category of an error. It decides the HTTP status.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"   // 400
	TypeNotFound    ErrorType = "not_found"    // 404
	TypeConflict    ErrorType = "conflict"     // 409
	TypeRateLimited ErrorType = "rate_limited" // 429, caller may retry
	TypeUnavailable ErrorType = "unavailable"  // 503, caller may retry
	TypeCanceled    ErrorType = "canceled"     // 499, the client went away
	TypeInternal    ErrorType = "internal"     // 500
)

// StatusClientClosedRequest is the non-standard status for a request the
// client abandoned before it finished.
const StatusClientClosedRequest = 499

// Error is a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed if sent again.
func (e *Error) Retryable() bool {
	return e.Type == TypeUnavailable || e.Type == TypeRateLimited
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Code:    string(t),
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func ConflictError(message string) *Error {
	return newError(TypeConflict, message, nil)
}

// UnavailableError signals a transient failure the client should retry.
func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func RateLimitedError(message string) *Error {
	return newError(TypeRateLimited, message, nil)
}

// CanceledError marks a request the client abandoned.
func CanceledError(message string, cause error) *Error {
	return newError(TypeCanceled, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithCode overrides the machine-readable code (defaults to the type).
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause attaches the underlying error, kept out of client responses.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField adds a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	code := e.Code
	if code == "" {
		code = string(e.Type)
	}
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Code:    code,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// An *Error anywhere in the chain is returned unchanged; anything else
// becomes an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
