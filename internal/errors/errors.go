// Package errors provides a standardized error taxonomy for the relay,
// matching the categories in spec §7: client protocol errors, auth
// errors, authorization errors (disguised as 404), and store errors.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is a structured error with an HTTP status and a machine
// readable code, returned verbatim as JSON from HTTP handlers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON body written for every AppError.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes, one per §7 taxonomy entry.
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalServer = "INTERNAL_ERROR"
	ErrCodeStoreError     = "STORE_ERROR"
)

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusForCode(code)}
}

// NewWithDetails creates a new AppError carrying debugging details.
func NewWithDetails(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusForCode(code)}
}

// Wrap turns an underlying error into an AppError, keeping its message
// as Details for server-side logs only.
func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeStoreError, ErrCodeInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse renders the AppError as its public JSON form. Details are
// dropped for 5xx errors so store internals never reach the client
// (§7: "callback with generic error").
func (e *AppError) ToResponse() ErrorResponse {
	details := e.Details
	if e.StatusCode >= http.StatusInternalServerError {
		details = ""
	}
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: details}
}

// BadRequest builds a 400 for malformed client input.
func BadRequest(message string) *AppError { return New(ErrCodeBadRequest, message) }

// Unauthorized builds a 401 for missing/invalid credentials.
func Unauthorized(message string) *AppError { return New(ErrCodeUnauthorized, message) }

// NotFound builds a 404, used both for missing resources and to mask
// authorization failures per §7 ("to avoid confirming existence").
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict builds a 409.
func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

// InternalServer builds a generic 500.
func InternalServer(message string) *AppError { return New(ErrCodeInternalServer, message) }

// StoreError wraps a persistence-layer error as a 500, keeping the
// underlying error for server-side logging only.
func StoreError(err error) *AppError {
	return Wrap(ErrCodeStoreError, "an internal error occurred", err)
}
