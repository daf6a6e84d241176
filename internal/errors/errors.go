// Package errors provides structured error types for the frame index.
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
	ErrCategoryFormat   ErrorCategory = "FORMAT"
	ErrCategoryGeocode  ErrorCategory = "GEOCODE"
	ErrCategoryDecode   ErrorCategory = "DECODE"
	ErrCategoryEncode   ErrorCategory = "ENCODE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryBuild    ErrorCategory = "BUILD"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Format codes
	CodeBadMagic         = "BAD_MAGIC"
	CodeTruncated        = "TRUNCATED"
	CodeBadOffset        = "BAD_OFFSET"
	CodeLengthMismatch   = "LENGTH_MISMATCH"
	CodeMissingComponent = "MISSING_COMPONENT"
	CodeBadRecord        = "BAD_RECORD"

	// Geocode codes
	CodeUnparsableName = "UNPARSABLE_NAME"
	CodeUnknownSeries  = "UNKNOWN_SERIES"
	CodeBadHeader      = "BAD_HEADER"

	// Decode/encode codes
	CodeDecodeFailed = "DECODE_FAILED"
	CodeEncodeFailed = "ENCODE_FAILED"

	// Query codes
	CodeInvalidQuery = "INVALID_QUERY"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Build codes
	CodeCanceled = "CANCELED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ErrCanceled is returned by a build that observed the stop flag.
var ErrCanceled = New(ErrCategoryBuild, CodeCanceled, "build canceled")

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsFormat reports whether err is an index format error.
func IsFormat(err error) bool {
	return GetCategory(err) == ErrCategoryFormat
}

// isRetryable determines if an error code is retryable. Decode failures are
// not retryable here; retry policy for frames lives in the absent tracker.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewFormatError(code, message string) *Error {
	return New(ErrCategoryFormat, code, message)
}

func NewGeocodeError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryGeocode, code, message, cause)
}

func NewDecodeError(message string, cause error) *Error {
	return Wrap(ErrCategoryDecode, CodeDecodeFailed, message, cause)
}

func NewEncodeError(message string, cause error) *Error {
	return Wrap(ErrCategoryEncode, CodeEncodeFailed, message, cause)
}

func NewInvalidQuery(message string) *Error {
	return New(ErrCategoryQuery, CodeInvalidQuery, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
