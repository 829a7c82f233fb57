package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowgrid/flowgrid/pkg/runner"
)

var (
	// ErrNotResumable indicates a resume call targeted an execution that is
	// not in a waiting state.
	ErrNotResumable = errors.New("execution is not resumable")

	// ErrNotCancelable indicates a cancel call targeted an execution that
	// already reached a terminal state.
	ErrNotCancelable = errors.New("execution is not cancelable")

	// ErrUnknownTriggerNode indicates the trigger info names a node that is
	// not a trigger entry point of the workflow.
	ErrUnknownTriggerNode = errors.New("trigger node is not an entry point of the workflow")
)

// ValidationError reports node configurations that failed schema validation.
// It is fatal: the execution is never created and nothing is retried.
type ValidationError struct {
	WorkflowID string
	Errors     []runner.ConfigError
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		messages[i] = ce.Error()
	}

	return fmt.Sprintf("workflow %s failed validation: %s", e.WorkflowID, strings.Join(messages, "; "))
}

// IsValidationError reports whether err is a workflow validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}

// RunnerError wraps a node behavior failure after its failure policy has been
// exhausted.
type RunnerError struct {
	NodeID   string
	Attempts int
	Err      error
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempt(s): %v", e.NodeID, e.Attempts, e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}
