// Package services provides the business logic layer between the HTTP surface
// and the execution engine.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrFlowNil           = errors.New("flow cannot be nil")
	ErrFlowNameRequired  = errors.New("flow name is required")
	ErrNodesRequired     = errors.New("flow must have at least one node")
	ErrInvalidFlowGraph  = errors.New("invalid flow graph")
	ErrInvalidLogFilter  = errors.New("invalid log filter")
	ErrInvalidDefinition = errors.New("invalid flow definition")

	// Business logic conflicts (409 Conflict).
	ErrExecutionNotActive   = errors.New("execution is not active")
	ErrExecutionNotPaused   = errors.New("execution is not paused")
	ErrExecutionFinished    = errors.New("execution already finished")
	ErrFlowHasExecutions    = errors.New("flow has executions and cannot be deleted")
	ErrInvalidTransitionReq = errors.New("requested transition is not allowed")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrInvalidFlowGraph) ||
		errors.Is(err, ErrInvalidLogFilter) ||
		errors.Is(err, ErrInvalidDefinition)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionNotActive) ||
		errors.Is(err, ErrExecutionNotPaused) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrFlowHasExecutions) ||
		errors.Is(err, ErrInvalidTransitionReq)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
