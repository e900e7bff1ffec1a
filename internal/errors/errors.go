// Package errors provides structured error types for the Quarry engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryPlan     ErrorCategory = "PLAN"
	ErrCategoryRemote   ErrorCategory = "REMOTE"
	ErrCategoryWrite    ErrorCategory = "WRITE"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeTableNotFound  = "TABLE_NOT_FOUND"

	// Plan codes
	CodeInvalidAccessPath    = "INVALID_ACCESS_PATH"
	CodeUnsupportedPredicate = "UNSUPPORTED_PREDICATE"

	// Remote codes
	CodeThrottled         = "THROTTLED"
	CodeRemoteUnavailable = "REMOTE_UNAVAILABLE"

	// Write codes
	CodeWriteReplayFailure = "WRITE_REPLAY_FAILURE"
	CodeUnsupportedWrite   = "UNSUPPORTED_WRITE"
	CodeBufferState        = "INVALID_BUFFER_STATE"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// QuarryError is the structured error type used throughout the engine.
type QuarryError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *QuarryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *QuarryError) Is(target error) bool {
	var t *QuarryError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new QuarryError.
func New(category ErrorCategory, code, message string) *QuarryError {
	return &QuarryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new QuarryError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *QuarryError {
	return &QuarryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *QuarryError) WithDetails(details map[string]interface{}) *QuarryError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a QuarryError.
func GetCategory(err error) ErrorCategory {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a QuarryError.
func GetCode(err error) string {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// isRetryable determines if an error code may clear on retry. Only
// remote throttling qualifies; REMOTE_UNAVAILABLE is the terminal
// form reported after the retry ceiling and must not loop.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryRemote && code == CodeThrottled
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *QuarryError {
	return New(ErrCategorySchema, code, message)
}

func NewPlanError(code, message string) *QuarryError {
	return New(ErrCategoryPlan, code, message)
}

func NewRemoteError(code, message string, cause error) *QuarryError {
	return Wrap(ErrCategoryRemote, code, message, cause)
}

func NewWriteError(code, message string, cause error) *QuarryError {
	return Wrap(ErrCategoryWrite, code, message, cause)
}

func NewConfigError(message string) *QuarryError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *QuarryError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
