package errors

import (
	"errors"
	"fmt"
)

// VaultError is the structured error type for vaultrag.
// It provides context for error handling, logging, and the final run result
// summaries surfaced to callers.
type VaultError struct {
	// Code is the unique error code (e.g., "ERR_401_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Connection, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new VaultError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new VaultError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *VaultError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a VaultError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
// Configuration errors are rejected before any work starts.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// DimensionError creates a dimension-mismatch error.
func DimensionError(expected, got int) *VaultError {
	return Newf(ErrCodeDimensionMismatch,
		"dimension mismatch: store expects %d, got %d", expected, got).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// ConnectionError creates a backend-unreachable error.
func ConnectionError(message string, cause error) *VaultError {
	return New(ErrCodeConnectionFailed, message, cause)
}

// CorruptionError creates an unreadable-store error, surfaced at Initialize.
func CorruptionError(message string, cause error) *VaultError {
	return New(ErrCodeStoreCorrupt, message, cause)
}

// EmbeddingError creates an embedding-provider error.
func EmbeddingError(message string, cause error) *VaultError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// PartialRecordError creates a single-record migration failure.
// These are recorded in the run result and do not abort the run.
func PartialRecordError(chunkID string, cause error) *VaultError {
	e := New(ErrCodePartialRecord, fmt.Sprintf("chunk %s failed to migrate", chunkID), cause)
	return e.WithDetail("chunk_id", chunkID)
}

// IsConfiguration reports whether err is a configuration or validation error.
func IsConfiguration(err error) bool {
	cat := GetCategory(err)
	return cat == CategoryConfig || cat == CategoryValidation
}

// IsConnection reports whether err is a connection-level failure.
// Connection failures abort a migration run since further inserts would
// also fail.
func IsConnection(err error) bool {
	return GetCategory(err) == CategoryConnection
}

// IsCorruption reports whether err indicates an unreadable persisted store.
func IsCorruption(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeStoreCorrupt
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current operation.
func IsFatal(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a VaultError anywhere in the chain.
// Returns empty string if no VaultError is found.
func GetCode(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from a VaultError anywhere in the chain.
func GetCategory(err error) Category {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}
