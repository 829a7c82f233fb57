// Package models defines the core domain models for graph-based workflow execution.
package models

import "time"

// NodeType is the coarse category of a node. The concrete behavior is
// selected by the (Type, Subtype) pair.
type NodeType string

const (
	NodeTypeTrigger  NodeType = "trigger"
	NodeTypeAction   NodeType = "action"
	NodeTypeFlow     NodeType = "flow"
	NodeTypeMemory   NodeType = "memory"
	NodeTypeHuman    NodeType = "human"
	NodeTypeTool     NodeType = "tool"
	NodeTypeAIAgent  NodeType = "ai_agent"
	NodeTypeExternal NodeType = "external"
)

// FailureAction selects what the engine does when a node's execution fails.
type FailureAction string

const (
	FailureActionStop     FailureAction = "stop_workflow"
	FailureActionContinue FailureAction = "continue_with_default_output"
	FailureActionRetry    FailureAction = "retry"
)

// FailurePolicy is a node's configured on_error behavior.
type FailurePolicy struct {
	Action           FailureAction `json:"action"`
	MaxTries         int           `json:"max_tries,omitempty"`
	WaitBetweenTries time.Duration `json:"wait_between_tries,omitempty"`
}

// DefaultFailurePolicy stops the workflow on the first node failure.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{Action: FailureActionStop}
}

// Node is a unit of work in a workflow graph. Nodes are never mutated during
// execution; per-run state lives in NodeExecutionRecord.
type Node struct {
	ID      string         `json:"id"      validate:"required"`
	Name    string         `json:"name"`
	Type    NodeType       `json:"type"    validate:"required"`
	Subtype string         `json:"subtype" validate:"required"`
	Config  map[string]any `json:"config"`
	OnError *FailurePolicy `json:"on_error,omitempty"`
}

// ErrorPolicy returns the node's failure policy, falling back to the default.
func (n *Node) ErrorPolicy() FailurePolicy {
	if n.OnError == nil {
		return DefaultFailurePolicy()
	}

	return *n.OnError
}

// Connection is a directed data-flow edge between two ports. Both ends use the
// normalized "{node_id}:{port_name}" form (see MakePortID / ParsePortID).
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"`
	TargetPort string `json:"target_port" validate:"required"`
}

// Workflow is an immutable workflow definition. It is produced by the design
// layer and read-only to the engine.
type Workflow struct {
	ID          string         `json:"id"          validate:"required"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Version     int            `json:"version"`
	Nodes       []*Node        `json:"nodes"       validate:"required,min=1"`
	Connections []*Connection  `json:"connections"`
	Triggers    []string       `json:"triggers"    validate:"required,min=1"` // entry-point node ids
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns the trigger entry nodes listed in w.Triggers, in order.
func (w *Workflow) TriggerNodes() []*Node {
	nodes := make([]*Node, 0, len(w.Triggers))

	for _, id := range w.Triggers {
		if node := w.NodeByID(id); node != nil {
			nodes = append(nodes, node)
		}
	}

	return nodes
}
