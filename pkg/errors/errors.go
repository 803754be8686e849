package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status. Value and Stack
// are carried through to the render error response schema ({error, value?,
// stack?}) without forcing every caller to populate them.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
	Value   any    `json:"-"`
	Stack   string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes. CodeInputError, CodeFetchError and CodeSandboxError
// correspond to the render pipeline's error taxonomy (InputError/FetchError/
// SandboxError); the rest are generic and kept from the ambient stack.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInputError         = "INPUT_ERROR"
	CodeFetchError         = "FETCH_ERROR"
	CodeSandboxError       = "SANDBOX_ERROR"
)

// Common application errors
var (
	ErrNotFound           = &AppError{Code: CodeNotFound, Message: "resource not found", Status: http.StatusNotFound}
	ErrBadRequest         = &AppError{Code: CodeBadRequest, Message: "bad request", Status: http.StatusBadRequest}
	ErrUnauthorized       = &AppError{Code: CodeUnauthorized, Message: "unauthorized", Status: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: CodeForbidden, Message: "forbidden", Status: http.StatusForbidden}
	ErrConflict           = &AppError{Code: CodeConflict, Message: "resource conflict", Status: http.StatusConflict}
	ErrInternalError      = &AppError{Code: CodeInternalError, Message: "internal server error", Status: http.StatusInternalServerError}
	ErrServiceUnavailable = &AppError{Code: CodeServiceUnavailable, Message: "service unavailable", Status: http.StatusServiceUnavailable}
)

// NewInputError builds a 400 InputError carrying the offending value, per the
// render error response schema {error, value}.
func NewInputError(message string, value any) *AppError {
	return &AppError{Code: CodeInputError, Message: message, Status: http.StatusBadRequest, Value: value}
}

// NewFetchError builds a 500 FetchError wrapping the cause returned by the
// package fetcher after retries are exhausted.
func NewFetchError(message string, cause error) *AppError {
	return &AppError{Code: CodeFetchError, Message: message, Status: http.StatusInternalServerError, Err: cause}
}

// NewSandboxError builds a 500 SandboxError carrying a stack trace, per the
// render error response schema {error, stack}.
func NewSandboxError(message string, cause error, stack string) *AppError {
	return &AppError{Code: CodeSandboxError, Message: message, Status: http.StatusInternalServerError, Err: cause, Stack: stack}
}

// New creates a new AppError
func New(code string, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, appErr *AppError) *AppError {
	return &AppError{
		Code:    appErr.Code,
		Message: appErr.Message,
		Status:  appErr.Status,
		Err:     err,
	}
}

// WithMessage returns a new AppError with a custom message
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Status:  e.Status,
		Err:     e.Err,
	}
}

// WithError returns a new AppError with a wrapped error
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Status:  e.Status,
		Err:     err,
	}
}

// Is checks if the error is a specific AppError
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetStatus returns the HTTP status from an error
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
