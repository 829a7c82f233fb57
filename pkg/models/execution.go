package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusWaiting         ExecutionStatus = "waiting"
	ExecutionStatusWaitingForHuman ExecutionStatus = "waiting_for_human"
	ExecutionStatusSuccess         ExecutionStatus = "success"
	ExecutionStatusError           ExecutionStatus = "error"
	ExecutionStatusCanceled        ExecutionStatus = "canceled"
)

// Terminal reports whether the status is final. Terminal executions are
// immutable once persisted.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError || s == ExecutionStatusCanceled
}

// Resumable reports whether an execution in this status accepts resume calls.
func (s ExecutionStatus) Resumable() bool {
	return s == ExecutionStatusWaiting || s == ExecutionStatusWaitingForHuman
}

// NodeStatus is the per-attempt state of one node inside an execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusWaiting   NodeStatus = "waiting"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// NodeExecutionRecord tracks one node's progress within an execution. Retries
// update the same record; they never create a new one.
type NodeExecutionRecord struct {
	NodeID    string                    `json:"node_id"`
	Status    NodeStatus                `json:"status"`
	Input     map[string]any            `json:"input,omitempty"`
	Output    map[string]map[string]any `json:"output,omitempty"` // keyed by output port name
	Error     string                    `json:"error,omitempty"`
	Attempts  int                       `json:"attempts"`
	StartedAt *time.Time                `json:"started_at,omitempty"`
	EndedAt   *time.Time                `json:"ended_at,omitempty"`
}

// TriggerInfo describes the external event that started an execution.
type TriggerInfo struct {
	Type      TriggerType    `json:"type"`
	NodeID    string         `json:"node_id,omitempty"` // trigger node that fired, when known
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionState is the persisted state of one workflow run. It is created
// when a trigger fires and mutated only by the execution engine.
type ExecutionState struct {
	ID          string                          `json:"id"`
	WorkflowID  string                          `json:"workflow_id"`
	Status      ExecutionStatus                 `json:"status"`
	Trigger     TriggerInfo                     `json:"trigger"`
	Sequence    []string                        `json:"sequence"` // node ids actually run, append-only
	Records     map[string]*NodeExecutionRecord `json:"records"`
	StartedAt   time.Time                       `json:"started_at"`
	EndedAt     *time.Time                      `json:"ended_at,omitempty"`
	Version     int64                           `json:"version"` // optimistic concurrency token
}

// Record returns the execution record for a node, creating a pending one if
// none exists yet.
func (e *ExecutionState) Record(nodeID string) *NodeExecutionRecord {
	if e.Records == nil {
		e.Records = make(map[string]*NodeExecutionRecord)
	}

	record, ok := e.Records[nodeID]
	if !ok {
		record = &NodeExecutionRecord{NodeID: nodeID, Status: NodeStatusPending}
		e.Records[nodeID] = record
	}

	return record
}
