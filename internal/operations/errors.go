package operations

import (
	"errors"
	"fmt"
)

// ErrorType classifies operation errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeNotFound     ErrorType = "not_found"
)

// OperationError wraps a stage failure with the stage it came from.
// It deliberately carries no HTTP classification of its own so that the
// wrapped domain error decides the response.
type OperationError struct {
	Type      ErrorType              `json:"type"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError reports a stage whose preconditions are not met
func NewValidationError(step, message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
		Cause:   cause,
	}
}

// NewDependencyError reports a stage skipped because a dependency failed
func NewDependencyError(step, dependsOn, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Step:    step,
		Message: message,
		Context: map[string]interface{}{"depends_on": dependsOn},
	}
}

// NewExecutionError wraps a stage failure
func NewExecutionError(step string, cause error, retryable bool) *OperationError {
	return &OperationError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   "stage execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewTimeoutError reports a stage that ran past its deadline
func NewTimeoutError(step string, timeout string, cause error) *OperationError {
	return &OperationError{
		Type:      ErrorTypeTimeout,
		Step:      step,
		Message:   fmt.Sprintf("stage exceeded timeout of %s", timeout),
		Cause:     cause,
		Context:   map[string]interface{}{"timeout": timeout},
		Retryable: true,
	}
}

// NewCancellationError reports a cancelled run
func NewCancellationError(step string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "operation was cancelled",
		Cause:   cause,
	}
}

// IsRetryable reports whether err is a retryable OperationError
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// GetErrorType returns the OperationError type, or execution for other errors
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ErrorTypeExecution
}

// WrapError attaches a stage to err
func WrapError(err error, step string, message string) *OperationError {
	if err == nil {
		return nil
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Step == "" {
			opErr.Step = step
		}
		if message != "" {
			opErr.Message = fmt.Sprintf("%s: %s", message, opErr.Message)
		}
		return opErr
	}

	return &OperationError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: message,
		Cause:   err,
	}
}

// ErrUnknownStep is returned when a request names a stage that is not registered
var ErrUnknownStep = &OperationError{
	Type:    ErrorTypeNotFound,
	Message: "unknown pipeline stage",
}
