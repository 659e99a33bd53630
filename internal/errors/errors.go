package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"

	// Account state
	ErrCodeAccountLocked    ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeAccountSuspended ErrorCode = "ACCOUNT_SUSPENDED"
	ErrCodeAccountWithdrawn ErrorCode = "ACCOUNT_WITHDRAWN"

	// Validation
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// InvalidCredentialsMessage is shared by the unknown-account and
// wrong-password paths so the two cannot be told apart.
const InvalidCredentialsMessage = "Invalid login id or password"

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// FieldErrors maps a request field name to the reason it was rejected.
type FieldErrors map[string]string

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, InvalidCredentialsMessage)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session has expired, please log in again")
}

// AccountLocked reports the remaining lock time rounded up to whole seconds.
func AccountLocked(remaining time.Duration) *AppError {
	seconds := int64((remaining + time.Second - 1) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return New(ErrCodeAccountLocked, fmt.Sprintf("Account is locked, try again in %d minute(s)", (seconds+59)/60)).
		WithDetails(map[string]int64{"remainingSeconds": seconds})
}

func AccountSuspended() *AppError {
	return New(ErrCodeAccountSuspended, "Account is suspended, please contact support")
}

func AccountWithdrawn() *AppError {
	return New(ErrCodeAccountWithdrawn, "Account has been withdrawn")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict reports a uniqueness violation on the named field.
func Conflict(field string) *AppError {
	return New(ErrCodeConflict, fmt.Sprintf("%s is already in use", field)).
		WithDetails(FieldErrors{field: "already in use"})
}

func ValidationError(fields FieldErrors) *AppError {
	return New(ErrCodeValidation, "Validation failed").WithDetails(fields)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Too many requests. Please try again later.")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
