// Package errors provides structured error types for arkdb.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySchema      ErrorCategory = "SCHEMA"
	ErrCategoryValidation  ErrorCategory = "VALIDATION"
	ErrCategoryQuery       ErrorCategory = "QUERY"
	ErrCategoryTransaction ErrorCategory = "TRANSACTION"
	ErrCategoryHost        ErrorCategory = "HOST"
	ErrCategoryStorage     ErrorCategory = "STORAGE"
	ErrCategoryInternal    ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeInvalidSchema = "INVALID_SCHEMA"
	CodeTableNotFound = "TABLE_NOT_FOUND"

	// Validation codes
	CodeUnknownField         = "UNKNOWN_FIELD"
	CodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	CodeTypeValidation       = "TYPE_VALIDATION"

	// Query codes
	CodeIndexNotFound = "INDEX_NOT_FOUND"
	CodeInvalidQuery  = "INVALID_QUERY"

	// Transaction codes
	CodeAborted       = "ABORTED"
	CodeScopeFinished = "SCOPE_FINISHED"
	CodeOutOfScope    = "OUT_OF_SCOPE"

	// Host codes
	CodeUnavailable = "UNAVAILABLE"
	CodeVersion     = "VERSION"

	// Storage codes
	CodeUploadFailed    = "UPLOAD_FAILED"
	CodeDownloadFailed  = "DOWNLOAD_FAILED"
	CodeObjectNotFound  = "OBJECT_NOT_FOUND"
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Matching is by category and code, so any
// instance built with the same pair matches regardless of message.
var (
	ErrSchema               = New(ErrCategorySchema, CodeInvalidSchema, "invalid schema")
	ErrTableNotFound        = New(ErrCategorySchema, CodeTableNotFound, "table not found")
	ErrUnknownField         = New(ErrCategoryValidation, CodeUnknownField, "unknown field")
	ErrRequiredFieldMissing = New(ErrCategoryValidation, CodeRequiredFieldMissing, "required field missing")
	ErrTypeValidation       = New(ErrCategoryValidation, CodeTypeValidation, "type validation failed")
	ErrIndexNotFound        = New(ErrCategoryQuery, CodeIndexNotFound, "index not found")
	ErrInvalidQuery         = New(ErrCategoryQuery, CodeInvalidQuery, "invalid query")
	ErrTransactionAborted   = New(ErrCategoryTransaction, CodeAborted, "transaction aborted")
	ErrScopeFinished        = New(ErrCategoryTransaction, CodeScopeFinished, "transaction scope finished")
	ErrOutOfScope           = New(ErrCategoryTransaction, CodeOutOfScope, "table outside transaction scope")
	ErrHostUnavailable      = New(ErrCategoryHost, CodeUnavailable, "host engine unavailable")
	ErrVersion              = New(ErrCategoryHost, CodeVersion, "host version conflict")
	ErrObjectNotFound       = New(ErrCategoryStorage, CodeObjectNotFound, "object not found")
)

// ArkError is the structured error type used throughout the system.
type ArkError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ArkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ArkError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ArkError) Is(target error) bool {
	var t *ArkError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ArkError.
func New(category ErrorCategory, code, message string) *ArkError {
	return &ArkError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ArkError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ArkError {
	return &ArkError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ArkError) WithDetails(details map[string]interface{}) *ArkError {
	cp := *e
	cp.Details = details
	return &cp
}

// Detail returns a single detail value or nil.
func (e *ArkError) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ae *ArkError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an ArkError.
func GetCategory(err error) ErrorCategory {
	var ae *ArkError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an ArkError.
func GetCode(err error) string {
	var ae *ArkError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryHost && code == CodeUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for the arkdb taxonomy.

// NewSchemaError reports a malformed schema for a table.
func NewSchemaError(table, message string) *ArkError {
	return New(ErrCategorySchema, CodeInvalidSchema, message).
		WithDetails(map[string]interface{}{"table": table})
}

// NewTableNotFoundError reports a table name absent from the schema.
func NewTableNotFoundError(table string) *ArkError {
	return New(ErrCategorySchema, CodeTableNotFound, fmt.Sprintf("table %q is not declared", table)).
		WithDetails(map[string]interface{}{"table": table})
}

// NewUnknownFieldError reports a record field with no column.
func NewUnknownFieldError(table, field string) *ArkError {
	return New(ErrCategoryValidation, CodeUnknownField,
		fmt.Sprintf("unknown field %q for table %q", field, table)).
		WithDetails(map[string]interface{}{"table": table, "field": field})
}

// NewRequiredFieldMissingError reports a required column with no value.
func NewRequiredFieldMissingError(table, field string) *ArkError {
	return New(ErrCategoryValidation, CodeRequiredFieldMissing,
		fmt.Sprintf("required field %q missing for table %q", field, table)).
		WithDetails(map[string]interface{}{"table": table, "field": field})
}

// NewTypeValidationError reports a value rejected by a type rule or a custom validator.
func NewTypeValidationError(table, field, message string) *ArkError {
	return New(ErrCategoryValidation, CodeTypeValidation,
		fmt.Sprintf("field %q of table %q: %s", field, table, message)).
		WithDetails(map[string]interface{}{"table": table, "field": field})
}

// NewIndexNotFoundError reports a filter or sort on an undeclared index.
func NewIndexNotFoundError(table, index string) *ArkError {
	return New(ErrCategoryQuery, CodeIndexNotFound,
		fmt.Sprintf("index %q not found on table %q", index, table)).
		WithDetails(map[string]interface{}{"table": table, "index": index})
}

func NewQueryError(code, message string) *ArkError {
	return New(ErrCategoryQuery, code, message)
}

// NewTransactionAbortError wraps the host's abort cause.
func NewTransactionAbortError(cause error) *ArkError {
	return Wrap(ErrCategoryTransaction, CodeAborted, "transaction aborted", cause)
}

func NewHostUnavailableError(message string, cause error) *ArkError {
	return Wrap(ErrCategoryHost, CodeUnavailable, message, cause)
}

func NewStorageError(code, message string, cause error) *ArkError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *ArkError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
