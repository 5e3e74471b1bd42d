package services

import (
	"errors"
	"fmt"

	"github.com/upb/lingotube/backend/services/providers"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeQuota        ErrorType = "quota"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrJobNotFound         = NewDomainError(ErrorTypeNotFound, "translation job not found", nil)
	ErrTranslationNotFound = NewDomainError(ErrorTypeNotFound, "translation not found", nil)
	ErrModelNotFound       = NewDomainError(ErrorTypeNotFound, "model not found in catalog", nil)
	ErrChatSessionNotFound = NewDomainError(ErrorTypeNotFound, "chat session not found", nil)

	// Validation Errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidMode     = NewDomainError(ErrorTypeValidation, "invalid generation mode", nil)
	ErrInvalidProvider = NewDomainError(ErrorTypeValidation, "invalid provider specified", nil)
	ErrEmptyPrompt     = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)
	ErrNoSegments      = NewDomainError(ErrorTypeValidation, "no subtitle segments to translate", nil)
	ErrNoProviders     = NewDomainError(ErrorTypeValidation, "no provider credentials configured", nil)
	ErrChatClosed      = NewDomainError(ErrorTypeValidation, "chat session is closed", nil)
	ErrModelBlocked    = NewDomainError(ErrorTypeValidation, "model is not available", nil)

	// Authorization Errors
	ErrUnauthorized  = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidAPIKey = NewDomainError(ErrorTypeUnauthorized, "invalid provider API key", nil)
	ErrInvalidToken  = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	// Quota Errors
	ErrQuotaExhausted = NewDomainError(ErrorTypeQuota, "quota exhausted on every available model", nil)

	// Conflict Errors
	ErrJobNotResumable = NewDomainError(ErrorTypeConflict, "job is not paused and cannot be resumed", nil)
	ErrJobRunning      = NewDomainError(ErrorTypeConflict, "job is already running", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "LLM provider unavailable", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "LLM provider error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimit
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	return GetErrorType(err) == ErrorTypeQuota
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// WrapProvider wraps a generation failure. Quota exhaustion keeps its own type
// so callers can tell "try later" from a broken provider. Domain errors pass through.
func WrapProvider(message string, err error) error {
	if GetErrorType(err) != "" {
		return err
	}
	if providers.IsQuota(err) {
		return NewDomainError(ErrorTypeQuota, message, err)
	}
	return NewDomainError(ErrorTypeExternal, message, err)
}
