package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for evaluation framework errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Catalog error codes
const (
	CATALOG_LOAD_FAILED  ErrorCode = "CATALOG_LOAD_FAILED"
	CATALOG_PARSE_FAILED ErrorCode = "CATALOG_PARSE_FAILED"
	TECHNIQUE_NOT_FOUND  ErrorCode = "TECHNIQUE_NOT_FOUND"
)

// Worker and coalition error codes
const (
	CAPABILITY_INSUFFICIENT ErrorCode = "CAPABILITY_INSUFFICIENT"
	WORKER_TIMEOUT          ErrorCode = "WORKER_TIMEOUT"
	WORKER_NOT_FOUND        ErrorCode = "WORKER_NOT_FOUND"
	WORKER_BUSY             ErrorCode = "WORKER_BUSY"
	GENERATION_UNAVAILABLE  ErrorCode = "GENERATION_UNAVAILABLE"
)

// Evaluation run error codes
const (
	BUDGET_EXCEEDED  ErrorCode = "BUDGET_EXCEEDED"
	ROUNDS_EXCEEDED  ErrorCode = "ROUNDS_EXCEEDED"
	ATTACK_MALFORMED ErrorCode = "ATTACK_MALFORMED"
	STORE_CONFLICT   ErrorCode = "STORE_CONFLICT"
	RUN_CANCELLED    ErrorCode = "RUN_CANCELLED"
)

// EvalError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type EvalError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *EvalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *EvalError) Is(target error) bool {
	var evalErr *EvalError
	if errors.As(target, &evalErr) {
		return e.Code == evalErr.Code
	}
	return false
}

// NewError creates a new non-retryable EvalError with the given code and message.
func NewError(code ErrorCode, message string) *EvalError {
	return &EvalError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable EvalError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., worker timeouts).
func NewRetryableError(code ErrorCode, message string) *EvalError {
	return &EvalError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable EvalError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *EvalError {
	return &EvalError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err carries the given evaluation error code anywhere
// in its chain.
func IsCode(err error, code ErrorCode) bool {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Code == code
	}
	return false
}
