package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: runtime_not_found, malformed_tree, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by code, so a copy made by WithCause still
// satisfies errors.Is against the predefined value.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Category == t.Category
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Launch errors abort the whole run
	ErrLaunchFailure = &ExecutionError{
		Category: ErrCategoryLaunch,
		Code:     "launch_failure",
		Message:  "failed to launch automation server",
	}
	ErrRuntimeNotFound = &ExecutionError{
		Category: ErrCategoryLaunch,
		Code:     "runtime_not_found",
		Message:  "requested runtime is not installed",
	}
	ErrPortInUse = &ExecutionError{
		Category: ErrCategoryLaunch,
		Code:     "port_in_use",
		Message:  "port already bound by a live server",
	}

	// Device errors
	ErrDeviceNotFound = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "device_not_found",
		Message:  "no eligible device found",
	}

	// Session errors
	ErrSessionInit = &ExecutionError{
		Category: ErrCategorySession,
		Code:     "session_init_failure",
		Message:  "failed to create session",
	}

	// Probe errors
	ErrTransientCapture = &ExecutionError{
		Category: ErrCategoryCapture,
		Code:     "capture_failure",
		Message:  "capture failed after retries",
	}
	ErrMalformedTree = &ExecutionError{
		Category: ErrCategoryTree,
		Code:     "malformed_tree",
		Message:  "page source is not a well-formed tree",
	}
	ErrAssertion = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_failed",
		Message:  "assertion failed",
	}

	// Teardown errors are logged, never escalated
	ErrTeardown = &ExecutionError{
		Category: ErrCategoryTeardown,
		Code:     "teardown_failure",
		Message:  "failed to quit session",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}

	ErrScenarioTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "scenario_timeout",
		Message:  "scenario exceeded its time ceiling",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, c ErrorCategory) bool {
	return err != nil && CategoryOf(err) == c
}
