package errors

import "fmt"

// ErrorCode represents a scriptforge error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrMissingAPIKey    ErrorCode = "MISSING_API_KEY"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrModelUnavailable ErrorCode = "MODEL_UNAVAILABLE" // 502 (recovered internally via fallback)
	ErrStorage          ErrorCode = "STORAGE"           // 500, fatal to a run
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// ForgeError represents a structured error with code, status, and details.
type ForgeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ForgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ForgeError {
	return &ForgeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewMissingAPIKey creates a 400 error for a request without model credentials.
func NewMissingAPIKey() *ForgeError {
	return &ForgeError{
		Code:    ErrMissingAPIKey,
		Status:  400,
		Message: "api key is required (flag, config, or ANTHROPIC_API_KEY)",
	}
}

// NewNotFound creates a 404 error for a missing project or session.
func NewNotFound(kind, identifier string) *ForgeError {
	return &ForgeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewModelUnavailable creates a 502 error for a failed external model call.
// Pipeline stages absorb this via the deterministic fallback path; it only
// surfaces in logs.
func NewModelUnavailable(err error) *ForgeError {
	msg := "model call failed"
	if err != nil {
		msg = err.Error()
	}
	return &ForgeError{
		Code:    ErrModelUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewStorage creates a 500 error for a persistence failure. Storage errors are
// fatal to the run that hit them.
func NewStorage(err error) *ForgeError {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &ForgeError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ForgeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ForgeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a ForgeError with the given code.
func Is(err error, code ErrorCode) bool {
	if fErr, ok := err.(*ForgeError); ok {
		return fErr.Code == code
	}
	return false
}
