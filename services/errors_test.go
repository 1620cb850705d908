package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeConfiguration,
				Message: "search engine not configured",
				Err:     errors.New("bing"),
			},
			wantMsg: "configuration: search engine not configured (bing)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "query cannot be empty",
			},
			wantMsg: "validation: query cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewValidationError("max results must be positive"),
			target: ErrInvalidMaxResults,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewValidationError("bad"),
			target: ErrNoEnginesConfigured,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewConfigurationError("none", nil),
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewConfigurationError("search engine not configured", nil)

	err.WithDetail("engine", "bing").WithDetail("configured", []string{"serper"})

	assert.Equal(t, "bing", err.Details["engine"])
	assert.Equal(t, []string{"serper"}, err.Details["configured"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		validation    bool
		configuration bool
		notFound      bool
		internal      bool
		external      bool
	}{
		{name: "empty query", err: ErrEmptyQuery, validation: true},
		{name: "wrapped max results", err: fmt.Errorf("wrapped: %w", ErrInvalidMaxResults), validation: true},
		{name: "no engines", err: ErrNoEnginesConfigured, configuration: true},
		{name: "override not configured", err: NewConfigurationError("not configured", errors.New("tavily")), configuration: true},
		{name: "attempt not found", err: ErrAttemptNotFound, notFound: true},
		{name: "database", err: ErrDatabaseError, internal: true},
		{name: "external", err: WrapExternal("provider failed", errors.New("boom")), external: true},
		{name: "regular error", err: errors.New("regular")},
		{name: "nil error", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.configuration, IsConfigurationError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.internal, IsInternalError(tt.err))
			assert.Equal(t, tt.external, IsExternalError(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, GetErrorType(ErrUnknownEngine))
	assert.Equal(t, ErrorTypeConfiguration, GetErrorType(ErrEngineNotConfigured))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("regular")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewValidationError("unknown search type")
	err.WithDetail("type", "images")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "images", details["type"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestWrapInternal(t *testing.T) {
	baseErr := errors.New("database connection failed")
	wrapped := WrapInternal("failed to connect", baseErr)

	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}
