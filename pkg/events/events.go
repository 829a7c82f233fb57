// Package events defines the lifecycle notifications the engine and the
// trigger manager publish on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowgrid/flowgrid/pkg/models"
)

type EventType string

// Topic is the bus topic all lifecycle events share.
const Topic = "flowgrid.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCanceledEvent  EventType = "execution.canceled"

	// Node lifecycle.
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Trigger dispatch.
	WorkflowActivatedEvent   EventType = "workflow.activated"
	WorkflowDeactivatedEvent EventType = "workflow.deactivated"
	TriggerFiredEvent        EventType = "trigger.fired"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

// NewBaseEvent builds the shared event envelope.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	TriggerNode string             `json:"trigger_node"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string                `json:"execution_id"`
	NodeID      string                `json:"node_id"`
	Kind        models.SuspensionKind `json:"kind"`
	DueAt       *time.Time            `json:"due_at,omitempty"`
}

func (e ExecutionSuspended) GetType() EventType { return ExecutionSuspendedEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string                `json:"execution_id"`
	NodeID      string                `json:"node_id"`
	Kind        models.SuspensionKind `json:"kind"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCanceled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCanceled) GetType() EventType { return ExecutionCanceledEvent }

type NodeCompleted struct {
	BaseEvent

	ExecutionID string   `json:"execution_id"`
	NodeID      string   `json:"node_id"`
	Ports       []string `json:"ports,omitempty"`
}

func (e NodeCompleted) GetType() EventType { return NodeCompletedEvent }

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
}

func (e NodeFailed) GetType() EventType { return NodeFailedEvent }

type WorkflowActivated struct {
	BaseEvent

	TriggerCount int `json:"trigger_count"`
}

func (e WorkflowActivated) GetType() EventType { return WorkflowActivatedEvent }

type WorkflowDeactivated struct {
	BaseEvent
}

func (e WorkflowDeactivated) GetType() EventType { return WorkflowDeactivatedEvent }

type TriggerFired struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	NodeID      string             `json:"node_id"`
	ExecutionID string             `json:"execution_id"`
}

func (e TriggerFired) GetType() EventType { return TriggerFiredEvent }
