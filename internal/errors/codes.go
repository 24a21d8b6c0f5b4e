// Package errors provides structured error handling for vaultrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (rejected before any work starts)
//   - 2XX: Storage/corruption errors
//   - 3XX: Connection errors
//   - 4XX: Validation errors
//   - 5XX: Provider and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates persisted-store I/O and corruption errors.
	CategoryStorage Category = "STORAGE"
	// CategoryConnection indicates backend connectivity errors.
	CategoryConnection Category = "CONNECTION"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, the run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Configuration errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeInvalidOverlap    = "ERR_103_INVALID_OVERLAP"
	ErrCodeUnknownBackend    = "ERR_104_UNKNOWN_BACKEND"
	ErrCodeUnknownProvider   = "ERR_105_UNKNOWN_PROVIDER"

	// Storage errors (200-299)
	ErrCodeStoreCorrupt     = "ERR_201_STORE_CORRUPT"
	ErrCodeStoreClosed      = "ERR_202_STORE_CLOSED"
	ErrCodeStoreLocked      = "ERR_203_STORE_LOCKED"
	ErrCodeStoreWriteFailed = "ERR_204_STORE_WRITE_FAILED"

	// Connection errors (300-399)
	ErrCodeConnectionFailed  = "ERR_301_CONNECTION_FAILED"
	ErrCodeConnectionTimeout = "ERR_302_CONNECTION_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeDimensionMismatch = "ERR_401_DIMENSION_MISMATCH"
	ErrCodeInvalidInput      = "ERR_402_INVALID_INPUT"
	ErrCodeChunkNotFound     = "ERR_403_CHUNK_NOT_FOUND"

	// Provider and internal errors (500-599)
	ErrCodeEmbeddingFailed = "ERR_501_EMBEDDING_FAILED"
	ErrCodeRateLimited     = "ERR_502_RATE_LIMITED"
	ErrCodePartialRecord   = "ERR_503_PARTIAL_RECORD"
	ErrCodeInternal        = "ERR_504_INTERNAL"
)

// categoryFromCode extracts category from the numeric portion of an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryConnection
	case '4':
		return CategoryValidation
	case '5':
		return CategoryProvider
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeConnectionFailed, ErrCodeConnectionTimeout:
		return SeverityFatal
	case ErrCodePartialRecord:
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeConnectionTimeout, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
