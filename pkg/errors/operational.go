package errors

import (
	"fmt"
	"time"
)

// OperationalError represents enhanced error information for debugging.
//
// It wraps errors with operational context including frame ID, node ID,
// and timestamp, so failures in the observability path can be traced back
// to the execution they belong to.
type OperationalError struct {
	Operation  string                 // What operation was being performed
	FrameID    string                 // Which frame
	NodeID     string                 // Which node (if applicable)
	Timestamp  time.Time              // When error occurred
	Attributes map[string]interface{} // Additional context (optional)
	Cause      error                  // Underlying error
}

// NewOperationalError creates an OperationalError wrapping an error.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalError(operation, frameID, nodeID string, cause error) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation: operation,
		FrameID:   frameID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewOperationalErrorWithAttrs creates an OperationalError with additional
// attributes.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalErrorWithAttrs(operation, frameID, nodeID string, cause error, attrs map[string]interface{}) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation:  operation,
		FrameID:    frameID,
		NodeID:     nodeID,
		Timestamp:  time.Now(),
		Attributes: attrs,
		Cause:      cause,
	}
}

// Error implements the error interface.
//
// Format: "[timestamp] operation: frame={id} node={id}: {cause}"
// If node ID is empty, it's omitted from the message.
func (e *OperationalError) Error() string {
	if e == nil {
		return "<nil OperationalError>"
	}

	timestamp := e.Timestamp.Format(time.RFC3339)

	var msg string
	if e.NodeID != "" {
		msg = fmt.Sprintf("[%s] %s: frame=%s node=%s: %v",
			timestamp,
			e.Operation,
			e.FrameID,
			e.NodeID,
			e.Cause)
	} else {
		msg = fmt.Sprintf("[%s] %s: frame=%s: %v",
			timestamp,
			e.Operation,
			e.FrameID,
			e.Cause)
	}

	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
