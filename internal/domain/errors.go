package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code and message so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrEmptyContent    = NewDomainError(ErrCodeValidation, "content is required")
	ErrMissingMetadata = NewDomainError(ErrCodeValidation, "metadata is required")
)

// Not found errors
var (
	ErrEntryNotFound      = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrSchemaNotFound     = NewDomainError(ErrCodeNotFound, "schema not found")
	ErrCollectionNotFound = NewDomainError(ErrCodeNotFound, "collection not found")
)

// Schema errors
var (
	ErrSchemaMalformed = NewDomainError(ErrCodeInternalError, "schema is malformed")
)

// Store errors
var (
	ErrStoreUnavailable  = NewDomainError(ErrCodeUnavailable, "knowledge store unavailable")
	ErrEmbeddingDisabled = NewDomainError(ErrCodeInvalidOperation, "embedding provider not configured")

	ErrDuplicateChecksRequired = NewDomainError(ErrCodeInvalidOperation, "duplicate checks cannot be skipped when storing")
)

// Authorization errors
var (
	ErrInvalidAPIToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
)
