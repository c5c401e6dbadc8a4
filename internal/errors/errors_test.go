package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/standardbeagle/lad/internal/types"
)

func TestCancellationError(t *testing.T) {
	err := NewCancellationError(7, CancelStateCanceled, "edit burst")

	if err.Type != ErrorTypeCancellation {
		t.Errorf("Expected Type to be ErrorTypeCancellation, got %v", err.Type)
	}

	if err.Generation != 7 {
		t.Errorf("Expected Generation to be 7, got %d", err.Generation)
	}

	if err.State != CancelStateCanceled {
		t.Errorf("Expected State to be canceled, got %v", err.State)
	}

	expectedMsg := "analysis canceled (generation 7): edit burst"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	if !IsCancellation(err) {
		t.Errorf("Expected IsCancellation to report true")
	}

	if !IsCancellation(fmt.Errorf("wrapped: %w", err)) {
		t.Errorf("Expected IsCancellation to see through wrapping")
	}

	if IsCancellation(errors.New("plain")) {
		t.Errorf("Expected IsCancellation to be false for plain errors")
	}
}

func TestCancellationErrorSuperseded(t *testing.T) {
	err := NewCancellationError(3, CancelStateSuperseded, "")

	expectedMsg := "analysis superseded (generation 3)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestConfigurationError(t *testing.T) {
	underlying := errors.New("invalid value")
	err := NewConfigurationError("daemon.workers", "0", underlying)

	if err.Field != "daemon.workers" {
		t.Errorf("Expected Field to be 'daemon.workers', got %s", err.Field)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	if !IsConfiguration(err) {
		t.Errorf("Expected IsConfiguration to report true")
	}

	expectedMsg := "config error for field daemon.workers (value 0): invalid value"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestCycleError(t *testing.T) {
	err := NewCycleError([]types.PassKind{"a", "b", "a"})

	if err.Field != "passes" {
		t.Errorf("Expected Field to be 'passes', got %s", err.Field)
	}

	if err.Value != "a -> b -> a" {
		t.Errorf("Expected cycle path 'a -> b -> a', got %s", err.Value)
	}

	if !IsConfiguration(err) {
		t.Errorf("Expected cycle error to be a configuration error")
	}
}

func TestPassExecutionError(t *testing.T) {
	underlying := errors.New("nil dereference")
	err := NewPassExecutionError("semantic", underlying).
		WithDocument(42, types.NewTextRange(0, 5)).
		WithRecoverable(true)

	if err.Type != ErrorTypePassExecution {
		t.Errorf("Expected Type to be ErrorTypePassExecution, got %v", err.Type)
	}

	if err.Kind != "semantic" {
		t.Errorf("Expected Kind to be 'semantic', got %s", err.Kind)
	}

	if err.Doc != 42 {
		t.Errorf("Expected Doc to be 42, got %d", err.Doc)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	if !err.IsRecoverable() {
		t.Errorf("Expected error to be marked as recoverable")
	}

	if !IsRecoverable(err) {
		t.Errorf("Expected IsRecoverable helper to report true")
	}

	expectedMsg := "pass semantic failed for document 42 over [0,5): nil dereference"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestPassExecutionErrorDefaultRecoverable(t *testing.T) {
	err := NewPassExecutionError("todo", errors.New("boom"))
	if !err.IsRecoverable() {
		t.Errorf("Expected pass errors to default to recoverable")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("WaitFor", 250*time.Millisecond)

	if !IsTimeout(err) {
		t.Errorf("Expected IsTimeout to report true")
	}

	expectedMsg := "WaitFor did not complete within 250ms"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestDocumentError(t *testing.T) {
	underlying := errors.New("unknown document")
	err := NewDocumentError("replace", "file:///tmp/a.go", underlying)

	if err.Operation != "replace" {
		t.Errorf("Expected Operation to be 'replace', got %s", err.Operation)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "document replace failed for file:///tmp/a.go: unknown document"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := errors.New("error 3")

	multiErr := NewMultiError([]error{err1, err2, err3})

	if len(multiErr.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(multiErr.Errors))
	}

	errMsg := multiErr.Error()
	if len(errMsg) < 10 || errMsg[:10] != "3 errors: " {
		t.Errorf("Expected message to start with '3 errors: ', got %q", errMsg)
	}

	singleErr := NewMultiError([]error{err1})
	if singleErr.Error() != "error 1" {
		t.Errorf("Expected 'error 1', got %q", singleErr.Error())
	}

	emptyErr := NewMultiError([]error{})
	if emptyErr.Error() != "no errors" {
		t.Errorf("Expected 'no errors', got %q", emptyErr.Error())
	}

	nilFiltered := NewMultiError([]error{err1, nil, err2, nil})
	if len(nilFiltered.Errors) != 2 {
		t.Errorf("Expected 2 errors after filtering nil, got %d", len(nilFiltered.Errors))
	}

	unwrapped := multiErr.Unwrap()
	if len(unwrapped) != 3 {
		t.Errorf("Expected 3 unwrapped errors, got %d", len(unwrapped))
	}

	if !errors.Is(multiErr, err2) {
		t.Errorf("Expected errors.Is to find members through Unwrap []error")
	}
}

func TestTimestamp(t *testing.T) {
	err := NewPassExecutionError("syntax", errors.New("test"))
	if err.Timestamp.IsZero() {
		t.Errorf("Expected non-zero timestamp")
	}

	now := time.Now()
	if err.Timestamp.After(now) || now.Sub(err.Timestamp) > time.Second {
		t.Errorf("Timestamp seems incorrect: %v", err.Timestamp)
	}
}

func BenchmarkCancellationError(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		err := NewCancellationError(types.Generation(i), CancelStateCanceled, "bench")
		_ = err.Error()
	}
}
