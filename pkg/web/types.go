// Package web provides the HTTP surface of the trigger and execution layer.
package web

import "github.com/flowgrid/flowgrid/pkg/models"

// ManualTriggerRequest is the body of a manual trigger invocation. Confirmed
// must be set when the trigger node requires confirmation.
type ManualTriggerRequest struct {
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Confirmed bool           `json:"confirmed"`
}

// GitHubEventRequest is a GitHub webhook delivery. EventType and DeliveryID
// fall back to the X-GitHub-Event and X-GitHub-Delivery headers when the body
// does not carry them.
type GitHubEventRequest struct {
	EventType  string         `json:"event_type"`
	DeliveryID string         `json:"delivery_id"`
	Payload    map[string]any `json:"payload"`
}

// EmailRequest is an inbound email handed to the email trigger dispatch.
type EmailRequest struct {
	To      string `json:"to"   validate:"required,email"`
	From    string `json:"from" validate:"required,email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ResumeRequest carries the data injected into a suspended node.
type ResumeRequest struct {
	Input map[string]any `json:"input"`
}

// ExecutionResult is the structured response of every dispatch endpoint.
type ExecutionResult struct {
	ExecutionID string                 `json:"execution_id,omitempty"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	NodeID      string                 `json:"node_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Message     string                 `json:"message"`
	Error       string                 `json:"error,omitempty"`
}

func executionResult(state *models.ExecutionState, message string) ExecutionResult {
	return ExecutionResult{
		ExecutionID: state.ID,
		WorkflowID:  state.WorkflowID,
		Status:      state.Status,
		Message:     message,
	}
}
