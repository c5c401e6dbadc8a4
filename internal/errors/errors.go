package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/standardbeagle/lad/internal/types"
)

// Error types for the lightning-analysis-daemon system
type ErrorType string

const (
	// Scheduling errors
	ErrorTypeCancellation  ErrorType = "cancellation"
	ErrorTypePassExecution ErrorType = "pass_execution"
	ErrorTypeTimeout       ErrorType = "timeout"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Document errors
	ErrorTypeDocument         ErrorType = "document"
	ErrorTypeDocumentTooLarge ErrorType = "document_too_large"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// CancelState records how a token reached its terminal state. Canceled and
// superseded are functionally identical to callers; they are kept apart for
// diagnostics only.
type CancelState string

const (
	CancelStateCanceled   CancelState = "canceled"
	CancelStateSuperseded CancelState = "superseded"
)

// CancellationError is the expected, frequent signal raised by CheckCanceled
// inside a pass. It abandons the current pass only and is never logged as an
// error.
type CancellationError struct {
	Type       ErrorType
	Generation types.Generation
	State      CancelState
	Reason     string
}

// NewCancellationError creates the error raised when a token observes its
// canceled flag.
func NewCancellationError(gen types.Generation, state CancelState, reason string) *CancellationError {
	return &CancellationError{
		Type:       ErrorTypeCancellation,
		Generation: gen,
		State:      state,
		Reason:     reason,
	}
}

// Error implements the error interface
func (e *CancellationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("analysis %s (generation %d): %s", e.State, e.Generation, e.Reason)
	}
	return fmt.Sprintf("analysis %s (generation %d)", e.State, e.Generation)
}

// ConfigurationError represents a fatal configuration problem: invalid
// settings, a malformed pass manifest, or a dependency cycle among pass
// kinds. Never retried.
type ConfigurationError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, value string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// NewCycleError creates the configuration error raised when the pass graph
// declares a dependency cycle. The cycle members are reported in declaration
// order so the operator can see the offending edges.
func NewCycleError(cycle []types.PassKind) *ConfigurationError {
	path := ""
	for i, k := range cycle {
		if i > 0 {
			path += " -> "
		}
		path += string(k)
	}
	return &ConfigurationError{
		Field:      "passes",
		Value:      path,
		Underlying: fmt.Errorf("dependency cycle among pass kinds"),
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
	}
	return fmt.Sprintf("config error for field %s: %v", e.Field, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigurationError) Unwrap() error {
	return e.Underlying
}

// PassExecutionError represents an unexpected failure inside a pass. The
// pass's range stays dirty so the next run retries it; sibling passes are
// unaffected.
type PassExecutionError struct {
	Type        ErrorType
	Kind        types.PassKind
	Doc         types.DocumentID
	Range       types.TextRange
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewPassExecutionError creates a new pass execution error with context
func NewPassExecutionError(kind types.PassKind, err error) *PassExecutionError {
	return &PassExecutionError{
		Type:        ErrorTypePassExecution,
		Kind:        kind,
		Underlying:  err,
		Timestamp:   time.Now(),
		Recoverable: true,
	}
}

// WithDocument adds the document and range the pass was bound to
func (e *PassExecutionError) WithDocument(doc types.DocumentID, rng types.TextRange) *PassExecutionError {
	e.Doc = doc
	e.Range = rng
	return e
}

// WithRecoverable marks the error as recoverable
func (e *PassExecutionError) WithRecoverable(recoverable bool) *PassExecutionError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *PassExecutionError) Error() string {
	if e.Doc != 0 {
		return fmt.Sprintf("pass %s failed for document %d over %s: %v", e.Kind, e.Doc, e.Range, e.Underlying)
	}
	return fmt.Sprintf("pass %s failed: %v", e.Kind, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *PassExecutionError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the error can be retried
func (e *PassExecutionError) IsRecoverable() bool {
	return e.Recoverable
}

// TimeoutError is the test/diagnostic-only condition raised by WaitFor when
// the bound elapses before the executor drains. Reported, never swallowed.
type TimeoutError struct {
	Operation string
	Limit     time.Duration
	Timestamp time.Time
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(op string, limit time.Duration) *TimeoutError {
	return &TimeoutError{
		Operation: op,
		Limit:     limit,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not complete within %v", e.Operation, e.Limit)
}

// DocumentError represents a document-manager failure
type DocumentError struct {
	Type       ErrorType
	URI        string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewDocumentError creates a new document error
func NewDocumentError(op, uri string, err error) *DocumentError {
	return &DocumentError{
		Type:       ErrorTypeDocument,
		URI:        uri,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s failed for %s: %v", e.Operation, e.URI, e.Underlying)
}

// Unwrap returns the underlying error
func (e *DocumentError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsCancellation reports whether err is (or wraps) a cancellation signal.
// Callers use this at the pass boundary to tell abandonment from failure.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// IsConfiguration reports whether err is (or wraps) a fatal configuration
// error.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is (or wraps) a WaitFor timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRecoverable checks if the error permits a retry on the next run
func IsRecoverable(err error) bool {
	var pe *PassExecutionError
	if errors.As(err, &pe) {
		return pe.IsRecoverable()
	}
	return false
}
