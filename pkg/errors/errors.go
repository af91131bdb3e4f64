package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the error kind reported to clients in the "error" field
type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "validation"
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	ErrCodeForbidden       ErrorCode = "forbidden"
	ErrCodeNotFound        ErrorCode = "not_found"
	ErrCodeConflict        ErrorCode = "conflict"
	ErrCodeUnavailable     ErrorCode = "unavailable"
	ErrCodeMediaDisabled   ErrorCode = "media_disabled"
	ErrCodeTimeout         ErrorCode = "timeout"
	ErrCodeRateLimited     ErrorCode = "rate_limited"
	ErrCodeInternal        ErrorCode = "internal"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"error"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func wrapAppError(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return newAppError(ErrCodeValidation, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthenticatedError(message string) *AppError {
	return newAppError(ErrCodeUnauthenticated, message, http.StatusUnauthorized)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return newAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return newAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return newAppError(ErrCodeConflict, message, http.StatusConflict)
}

func MediaDisabledError() *AppError {
	return newAppError(ErrCodeMediaDisabled, "Media uploads are disabled on this server", http.StatusNotImplemented)
}

func TimeoutError() *AppError {
	return newAppError(ErrCodeTimeout, "Request timeout", http.StatusGatewayTimeout)
}

func ServiceUnavailableError(message string) *AppError {
	return newAppError(ErrCodeUnavailable, message, http.StatusServiceUnavailable)
}

// Internal errors
func InternalError(message string) *AppError {
	return newAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func Internal(err error) *AppError {
	return wrapAppError(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// GetAppError extracts AppError from an error chain, wrapping anything else as Internal
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
