// Package errs defines the error taxonomy shared by the remediation
// pipeline: validation failures, executor failures, retry-budget timeouts
// and storage problems. Handlers and the orchestrator classify errors with
// errors.As against these types.
package errs

import (
	"fmt"
	"time"
)

// ValidationError reports bad input from the alert sender. Never retried,
// surfaced synchronously as a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExecError reports a failed remediation action run. Retryable per policy.
type ExecError struct {
	Host       string
	Action     string
	ReturnCode int
	Stderr     string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("action %s failed on %s (rc=%d): %s", e.Action, e.Host, e.ReturnCode, truncate(e.Stderr, 200))
}

// TimeoutError reports an exhausted wall-clock retry budget. Terminal.
type TimeoutError struct {
	Operation string
	Elapsed   time.Duration
	Limit     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %v (limit: %v)", e.Operation, e.Elapsed.Round(time.Millisecond), e.Limit)
}

// StorageError reports a failed event log read or write. Writers log it;
// readers degrade to empty results instead of failing the caller.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
