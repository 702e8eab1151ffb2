// Package errors defines the error taxonomy for the repricing pipeline.
//
// Errors are classified by category (what subsystem failed) and code (how it
// failed), carry a context map with the details a caller needs to render a
// user-facing message (file path, block index, missing column names), and
// capture stack traces for verbose diagnostics.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryLoad          ErrorCategory = "load"
	CategoryMatching      ErrorCategory = "matching"
	CategoryWrite         ErrorCategory = "write"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeEmptyTable    ErrorCode = "empty_table"

	// Load errors
	CodeFileNotFound      ErrorCode = "file_not_found"
	CodeFilePermission    ErrorCode = "file_permission"
	CodeFileCorrupted     ErrorCode = "file_corrupted"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"

	// Matching errors
	CodeBlockFailed      ErrorCode = "block_failed"
	CodeResultMissing    ErrorCode = "result_missing"
	CodeRowCountMismatch ErrorCode = "row_count_mismatch"

	// Write errors
	CodeArtifactFailed ErrorCode = "artifact_failed"
	CodeDirectoryError ErrorCode = "directory_error"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// RepricerError is the base error type for all application errors
type RepricerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *RepricerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *RepricerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *RepricerError) GetExitCode() int {
	switch e.Category {
	case CategoryLoad:
		return 2
	case CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryMatching, CategoryInternal:
		return 5
	case CategoryWrite:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *RepricerError) WithContext(key string, value interface{}) *RepricerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *RepricerError) WithSuggestion(suggestion string) *RepricerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RepricerError
func New(category ErrorCategory, code ErrorCode, message string) *RepricerError {
	return &RepricerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with RepricerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *RepricerError {
	if err == nil {
		return nil
	}

	return &RepricerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// ValidationError reports a claim table that fails the schema contract,
// most commonly required columns missing on load.
func ValidationError(code ErrorCode, path string, missingColumns []string, err error) *RepricerError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("required columns missing in %s: %s", path, strings.Join(missingColumns, ", "))
		suggestion = "verify the extract has all required claim columns with correct headers"
	case CodeEmptyTable:
		message = fmt.Sprintf("claim extract %s contains no data rows", path)
		suggestion = "ensure the file contains a header row and at least one claim row"
	default:
		message = fmt.Sprintf("validation failed for %s", path)
		suggestion = "check the extract format against the required column set"
	}

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	result = result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
	if len(missingColumns) > 0 {
		result = result.WithContext("missing_columns", missingColumns)
	}
	return result
}

// LoadError reports a claim extract that could not be read or parsed.
// The original cause is preserved for user-facing reporting.
func LoadError(code ErrorCode, path string, err error) *RepricerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("claim file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing claim file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("claim file appears to be corrupt or unreadable: %s", path)
		suggestion = "verify the file opens in a spreadsheet application and re-export it"
	case CodeUnsupportedFormat:
		message = fmt.Sprintf("unsupported claim file format: %s", path)
		suggestion = "provide the extract as .csv or .xlsx"
	default:
		message = fmt.Sprintf("failed to load claim file: %s", path)
		suggestion = "check the file and try again"
	}

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryLoad, code, message)
	} else {
		result = New(CategoryLoad, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// MatchingError reports a failed worker block at the aggregation boundary.
// The block index identifies which partition failed; matching errors are not
// retried automatically.
func MatchingError(code ErrorCode, blockIndex int, err error) *RepricerError {
	var message string
	var suggestion string

	switch code {
	case CodeBlockFailed:
		message = fmt.Sprintf("reversal matching failed in block %d", blockIndex)
		suggestion = "inspect the claim rows in the failing block for malformed data"
	case CodeResultMissing:
		message = fmt.Sprintf("no result received for block %d", blockIndex)
		suggestion = "this indicates a worker crash - rerun with --log-level debug"
	case CodeRowCountMismatch:
		message = fmt.Sprintf("aggregated row count does not match input (block %d)", blockIndex)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("matching error in block %d", blockIndex)
		suggestion = "review the input data and configuration"
	}

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryMatching, code, message)
	} else {
		result = New(CategoryMatching, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("block_index", blockIndex)
}

// WriteError reports a failed primary output artifact. Best-effort artifacts
// (the columnar snapshot) never produce a WriteError; they are logged and
// swallowed by the writer.
func WriteError(code ErrorCode, artifact, path string, err error) *RepricerError {
	var message string
	var suggestion string

	switch code {
	case CodeArtifactFailed:
		message = fmt.Sprintf("failed to write %s artifact: %s", artifact, path)
		suggestion = "check disk space and that the file is not open in another program"
	case CodeDirectoryError:
		message = fmt.Sprintf("output directory not writable: %s", path)
		suggestion = "ensure the output directory exists and is writable"
	default:
		message = fmt.Sprintf("write error for %s: %s", artifact, path)
		suggestion = "check the output location and try again"
	}

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryWrite, code, message)
	} else {
		result = New(CategoryWrite, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("artifact", artifact).
		WithContext("path", path)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *RepricerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *RepricerError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	var result *RepricerError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// Utility functions

// IsRepricerError checks if an error is a RepricerError
func IsRepricerError(err error) bool {
	_, ok := err.(*RepricerError)
	return ok
}

// AsRepricerError extracts a RepricerError from an error chain
func AsRepricerError(err error) (*RepricerError, bool) {
	var repricerErr *RepricerError
	if errors.As(err, &repricerErr) {
		return repricerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a RepricerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *RepricerError {
	if err == nil {
		return nil
	}

	if repricerErr, ok := AsRepricerError(err); ok {
		return repricerErr
	}

	return Wrap(err, category, code, message)
}

// HasCategory reports whether err carries the given category anywhere in its chain
func HasCategory(err error, category ErrorCategory) bool {
	if repricerErr, ok := AsRepricerError(err); ok {
		return repricerErr.Category == category
	}
	return false
}
