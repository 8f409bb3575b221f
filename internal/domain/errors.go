// Package domain provides the types shared by the pipes, tools and pipelines.
package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode categorises an adapter failure.
type ErrorCode string

const (
	// ErrorCodeForbidden indicates the ACL rejected the caller.
	ErrorCodeForbidden ErrorCode = "forbidden"

	// ErrorCodeNotFound indicates an unknown pipeline or tool.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeInvalidRequest indicates a malformed request.
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrorCodeUnauthorized indicates a missing or wrong bearer key.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeUpstream indicates the external service could not be reached
	// or answered with something that could not be decoded.
	ErrorCodeUpstream ErrorCode = "upstream_error"
)

// APIError is the structured error carried inside an ErrorPayload.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatusCode returns the status used when the error is served directly.
func (e *APIError) HTTPStatusCode() int {
	switch e.Code {
	case ErrorCodeForbidden:
		return http.StatusForbidden
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorPayload is the {"error": {"code", "message"}} document returned by
// adapters instead of raising.
type ErrorPayload struct {
	Error *APIError `json:"error"`
}

// NewErrorPayload builds an ErrorPayload.
func NewErrorPayload(code ErrorCode, message string) ErrorPayload {
	return ErrorPayload{Error: &APIError{Code: code, Message: message}}
}

// String renders the payload as JSON.
func (p ErrorPayload) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return `{"error":{"code":"upstream_error","message":"encode error"}}`
	}
	return string(data)
}

// ErrForbidden creates a forbidden payload.
func ErrForbidden(message string) ErrorPayload {
	return NewErrorPayload(ErrorCodeForbidden, message)
}

// ErrNotFound creates a not found payload.
func ErrNotFound(message string) ErrorPayload {
	return NewErrorPayload(ErrorCodeNotFound, message)
}

// ErrUpstream creates an upstream failure payload.
func ErrUpstream(message string) ErrorPayload {
	return NewErrorPayload(ErrorCodeUpstream, message)
}
