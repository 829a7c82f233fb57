// Package store provides standardized error types for execution state
// persistence operations.
package store

import (
	"errors"
	"fmt"
)

// Standard store error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists indicates an execution with the same id already exists.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrSuspensionNotFound indicates no matching suspension record exists
	// for a resume call.
	ErrSuspensionNotFound = errors.New("suspension not found")

	// ErrRegistrationNotFound indicates a trigger registration was not found.
	ErrRegistrationNotFound = errors.New("trigger registration not found")

	// ErrVersionConflict indicates a concurrent mutation won the save race
	// for the same execution id.
	ErrVersionConflict = errors.New("execution version conflict")

	// ErrUnavailable indicates the backing store is unreachable. Callers
	// must fail the triggering operation rather than proceed with
	// unpersisted state.
	ErrUnavailable = errors.New("store unavailable")
)

// ExecutionError wraps execution-related store errors with operation context.
type ExecutionError struct {
	Op          string // operation being performed (e.g. "SaveExecution")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// SuspensionError wraps suspension-related store errors with context.
type SuspensionError struct {
	Op          string
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *SuspensionError) Error() string {
	return fmt.Sprintf("%s failed for node %s in execution %s: %v", e.Op, e.NodeID, e.ExecutionID, e.Err)
}

func (e *SuspensionError) Unwrap() error {
	return e.Err
}

func (e *SuspensionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSuspensionError creates a new suspension error with context.
func NewSuspensionError(op, executionID, nodeID string, err error) *SuspensionError {
	return &SuspensionError{Op: op, ExecutionID: executionID, NodeID: nodeID, Err: err}
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsSuspensionNotFound checks if an error indicates a missing suspension.
func IsSuspensionNotFound(err error) bool {
	return errors.Is(err, ErrSuspensionNotFound)
}

// IsVersionConflict checks if an error indicates a lost save race.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
