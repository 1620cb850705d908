package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure
type ErrorKind string

const (
	// KindAuth means the provider explicitly rejected the credentials
	KindAuth ErrorKind = "auth_error"
	// KindRateLimited means the provider asked us to slow down
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout means the call did not complete before its deadline
	KindTimeout ErrorKind = "timeout"
	// KindUnreachable covers transport failures and unusable status codes
	KindUnreachable ErrorKind = "unreachable"
	// KindMalformed means the payload could not be parsed
	KindMalformed ErrorKind = "malformed"
)

// AllErrorKinds lists every kind
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{KindAuth, KindRateLimited, KindTimeout, KindUnreachable, KindMalformed}
}

// ProviderError represents a classified failure from an adapter
type ProviderError struct {
	// Engine that generated the error
	Engine Engine

	// Kind of failure
	Kind ErrorKind

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// RetryAfter is the provider's hint for rate-limited responses
	RetryAfter time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Engine, e.Kind, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(engine Engine, kind ErrorKind, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Engine:     engine,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewRateLimitedError creates a rate-limited error carrying the retry hint
func NewRateLimitedError(engine Engine, statusCode int, retryAfter time.Duration) *ProviderError {
	return &ProviderError{
		Engine:     engine,
		Kind:       KindRateLimited,
		Message:    "rate limited",
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
}

// KindOf returns the kind of a provider error. Errors that are not
// ProviderErrors count as unreachable.
func KindOf(err error) ErrorKind {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return KindUnreachable
}

// RetryAfterOf returns the retry hint of a rate-limited error, or zero
func RetryAfterOf(err error) time.Duration {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.RetryAfter
	}
	return 0
}

// IsAuthError reports whether err is a credential rejection
func IsAuthError(err error) bool {
	return err != nil && KindOf(err) == KindAuth
}
