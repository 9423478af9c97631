package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvariant       = "INVARIANT_VIOLATION"
	ErrCodeStartCount      = "MISSING_OR_DUPLICATE_START"
	ErrCodeNoStart         = "NO_START_NODE"
	ErrCodeIncompleteNode  = "INCOMPLETE_NODE"
	ErrCodeUnreachableEnd  = "UNREACHABLE_END"
	ErrCodeDanglingEdge    = "DANGLING_EDGE"
	ErrCodeUnstructured    = "UNSTRUCTURED_GRAPH"
	ErrCodeDuplicateName   = "DUPLICATE_NAME"
	ErrCodeLimitExceeded   = "LIMIT_EXCEEDED"
	ErrCodeInvalidName     = "INVALID_NAME"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnknownVariable = "UNKNOWN_VARIABLE"
	ErrCodeUnreachableNode = "UNREACHABLE_NODE"
	ErrCodeEmptyPayload    = "EMPTY_PAYLOAD"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeStepLimit       = "STEP_LIMIT"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeDecode          = "DECODE_ERROR"
)

// FlowError is the structured error type for all flowgen operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
