package models

import "time"

// SuspensionKind classifies what external event resumes a suspended node.
type SuspensionKind string

const (
	SuspensionKindTimer        SuspensionKind = "timer"
	SuspensionKindHumanInput   SuspensionKind = "human_input"
	SuspensionKindExternalWait SuspensionKind = "external_wait"
)

// SuspensionRecord correlates a suspended node with the event that will resume
// it. Together with the node execution records it forms the persisted
// continuation of an execution: a restarted process resumes purely from these
// records. Deleted once consumed by a resume call.
type SuspensionRecord struct {
	ExecutionID    string         `json:"execution_id"    validate:"required"`
	NodeID         string         `json:"node_id"         validate:"required"`
	Kind           SuspensionKind `json:"kind"            validate:"required"`
	DueAt          *time.Time     `json:"due_at,omitempty"`          // timers only
	CorrelationKey string         `json:"correlation_key,omitempty"` // human input / external callbacks
	CreatedAt      time.Time      `json:"created_at"`
}

// Due reports whether a timer suspension is due at the given time.
func (s *SuspensionRecord) Due(now time.Time) bool {
	return s.Kind == SuspensionKindTimer && s.DueAt != nil && !s.DueAt.After(now)
}
