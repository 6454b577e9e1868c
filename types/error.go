package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Graph structural error codes
const (
	ErrNodeNotFound  ErrorCode = "NODE_NOT_FOUND"
	ErrEdgeNotFound  ErrorCode = "EDGE_NOT_FOUND"
	ErrDanglingEdge  ErrorCode = "DANGLING_EDGE"
	ErrCycleDetected ErrorCode = "CYCLE_DETECTED"
	ErrDisconnected  ErrorCode = "DISCONNECTED_NODE"
	ErrInvalidGraph  ErrorCode = "INVALID_GRAPH"
)

// Execution error codes
const (
	ErrExecutorNotRegistered ErrorCode = "EXECUTOR_NOT_REGISTERED"
	ErrNodeExecution         ErrorCode = "NODE_EXECUTION"
	ErrNodeTimeout           ErrorCode = "NODE_TIMEOUT"
	ErrInvalidConfig         ErrorCode = "INVALID_CONFIG"
	ErrInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrExecutionCancelled    ErrorCode = "EXECUTION_CANCELLED"
)

// Serialization and storage error codes
const (
	ErrInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNode attaches the id of the node the error relates to.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
