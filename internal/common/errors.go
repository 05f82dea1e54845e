// Package common defines shared constants, sentinel errors and the operational
// AppError type used across the server layers. Callers should use errors.Is /
// errors.As to match these values.
package common

import (
	"errors"
	"net/http"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// Account flow errors.
	ErrDuplicateEmail                 = errors.New("duplicate email")
	ErrInvalidCredentials             = errors.New("invalid credentials")
	ErrUserNotFound                   = errors.New("user not found")
	ErrInvalidOrExpiredToken          = errors.New("invalid or expired token")
	ErrInvalidOrAlreadyVerifiedToken  = errors.New("invalid or already verified token")
	ErrEmailDeliveryFailed            = errors.New("email delivery failed")
	ErrUnauthenticated                = errors.New("unauthenticated")
	ErrForbidden                      = errors.New("forbidden")
	ErrValidation                     = errors.New("validation error")
	ErrPasswordChangedAfterTokenIssue = errors.New("password changed after token issue")
)

// AppError is an operational error: its Message is safe to show to the
// caller and Status is the HTTP status to answer with. Err keeps the
// underlying cause for errors.Is and for logs.
type AppError struct {
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError builds an operational error wrapping cause.
func NewAppError(status int, message string, cause error) *AppError {
	return &AppError{Status: status, Message: message, Err: cause}
}

func BadRequest(message string, cause error) *AppError {
	return NewAppError(http.StatusBadRequest, message, cause)
}

func Unauthenticated(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrUnauthenticated
	}
	return NewAppError(http.StatusUnauthorized, message, cause)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, message, ErrForbidden)
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, message, ErrorNotFound)
}

// StatusText returns "fail" for client errors and "error" otherwise.
func StatusText(status int) string {
	if status >= 400 && status < 500 {
		return "fail"
	}
	return "error"
}
