// Package apperr defines the error taxonomy shared across the service.
// Every caller-visible failure maps to a stable machine-readable code and an
// HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to clients.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidAPIKey        = "INVALID_API_KEY"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamError        = "UPSTREAM_ERROR"
	CodeInternal             = "INTERNAL_SERVER_ERROR"
)

// Error is a caller-visible application error.
type Error struct {
	Status  int
	Code    string
	Message string

	// RetryAfter is the hint in seconds for rate limit errors, 0 otherwise.
	RetryAfter int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an application error with the given status, code and message.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// InvalidInput marks a malformed or empty user-supplied field. Never retried.
func InvalidInput(message string) *Error {
	return New(http.StatusBadRequest, CodeInvalidInput, message)
}

// ConversationNotFound covers both unknown ids and ids owned by someone else,
// so existence is never leaked across callers.
func ConversationNotFound() *Error {
	return New(http.StatusNotFound, CodeConversationNotFound, "conversation not found")
}

// UserNotFound marks a missing user record.
func UserNotFound() *Error {
	return New(http.StatusNotFound, CodeUserNotFound, "user not found")
}

// Unauthorized marks a request with no API key.
func Unauthorized() *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, "authentication required")
}

// InvalidAPIKey marks a request with an unknown API key.
func InvalidAPIKey() *Error {
	return New(http.StatusUnauthorized, CodeInvalidAPIKey, "invalid API key")
}

// Throttled marks a rate-limited request with a retry-after hint in seconds.
func Throttled(limit, windowSeconds, retryAfter int) *Error {
	e := New(http.StatusTooManyRequests, CodeRateLimitExceeded,
		fmt.Sprintf("rate limit of %d requests per %d seconds exceeded", limit, windowSeconds))
	e.RetryAfter = retryAfter
	return e
}

// Upstream marks a failed, timed out or unusable completion provider call.
func Upstream(cause error, message string) *Error {
	e := New(http.StatusBadGateway, CodeUpstreamError, message)
	e.cause = cause
	return e
}

// Internal wraps any unexpected failure.
func Internal(cause error) *Error {
	e := New(http.StatusInternalServerError, CodeInternal, "internal server error")
	e.cause = cause
	return e
}

// From extracts the application error from err, wrapping unknown errors as
// internal ones.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
