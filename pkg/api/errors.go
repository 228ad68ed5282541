package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeSessionNotFound ErrorType = "session_not_found"
	ErrorTypeSessionClosed   ErrorType = "session_closed"
	ErrorTypeMalformedForm   ErrorType = "malformed_form"
	ErrorTypeValidatorError  ErrorType = "validator_error"
)

// Sentinel errors for errors.Is matching. Matching compares the error type
// only, so an APIError built with a different message still matches.
var (
	ErrSessionNotFound = &APIError{Type: ErrorTypeSessionNotFound, Message: "session not found"}
	ErrSessionClosed   = &APIError{Type: ErrorTypeSessionClosed, Message: "session is closed"}
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is reports whether target is an APIError of the same type.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewSessionNotFoundError reports an unknown or purged session id.
func NewSessionNotFoundError(id string) *APIError {
	return &APIError{
		Type:    ErrorTypeSessionNotFound,
		Param:   "session_id",
		Message: fmt.Sprintf("session %q not found, please reconnect", id),
	}
}

// NewSessionClosedError reports input sent to a finished session.
func NewSessionClosedError(id string, status SessionStatus) *APIError {
	return &APIError{
		Type:    ErrorTypeSessionClosed,
		Code:    string(status),
		Message: fmt.Sprintf("session %q is %s", id, status),
	}
}

// NewMalformedFormError creates an APIError for a form definition that failed validation.
func NewMalformedFormError(formID, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeMalformedForm,
		Param:   formID,
		Message: message,
	}
}

// NewValidatorError creates an APIError for a judge backend failure.
func NewValidatorError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeValidatorError,
		Message: message,
	}
}
