package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortID(t *testing.T) {
	nodeID, port, ok := ParsePortID("node-1:main")
	require.True(t, ok)
	assert.Equal(t, "node-1", nodeID)
	assert.Equal(t, "main", port)

	_, _, ok = ParsePortID("no-separator")
	assert.False(t, ok)
}

func TestMakePortID(t *testing.T) {
	assert.Equal(t, "sort-1:main", MakePortID("sort-1", "main"))
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.True(t, ExecutionStatusSuccess.Terminal())
	assert.True(t, ExecutionStatusError.Terminal())
	assert.True(t, ExecutionStatusCanceled.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.False(t, ExecutionStatusWaiting.Terminal())
	assert.False(t, ExecutionStatusWaitingForHuman.Terminal())
}

func TestExecutionStatus_Resumable(t *testing.T) {
	assert.True(t, ExecutionStatusWaiting.Resumable())
	assert.True(t, ExecutionStatusWaitingForHuman.Resumable())
	assert.False(t, ExecutionStatusRunning.Resumable())
	assert.False(t, ExecutionStatusSuccess.Resumable())
}

func TestExecutionState_Record(t *testing.T) {
	state := &ExecutionState{ID: "exec-1"}

	record := state.Record("node-1")
	require.NotNil(t, record)
	assert.Equal(t, NodeStatusPending, record.Status)

	// Same record on repeated lookups.
	record.Status = NodeStatusRunning
	assert.Equal(t, NodeStatusRunning, state.Record("node-1").Status)
}

func TestTriggerRegistration_Validate(t *testing.T) {
	reg := &TriggerRegistration{
		ID:             "reg-1",
		WorkflowID:     "wf-1",
		NodeID:         "trigger-1",
		Type:           TriggerTypeCron,
		CronExpression: "*/5 * * * *",
	}
	require.NoError(t, reg.Validate())

	reg.CronExpression = "not a cron expression"
	assert.Error(t, reg.Validate())

	reg.CronExpression = ""
	assert.ErrorIs(t, reg.Validate(), ErrInvalidRegistration)
}

func TestTriggerRegistration_ScheduleNext(t *testing.T) {
	reg := &TriggerRegistration{
		ID:             "reg-1",
		WorkflowID:     "wf-1",
		NodeID:         "trigger-1",
		Type:           TriggerTypeCron,
		Enabled:        true,
		CronExpression: "0 * * * *",
	}

	from := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, reg.ScheduleNext(from))
	require.NotNil(t, reg.NextDueAt)
	assert.Equal(t, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), reg.NextDueAt.UTC())

	assert.False(t, reg.CronDue(from))
	assert.True(t, reg.CronDue(from.Add(time.Hour)))
}

func TestTriggerRegistration_MatchesGitHub(t *testing.T) {
	reg := &TriggerRegistration{
		ID:             "reg-1",
		WorkflowID:     "wf-1",
		NodeID:         "trigger-1",
		Type:           TriggerTypeGitHub,
		Enabled:        true,
		InstallationID: 42,
		Repository:     "acme/widgets",
		Events:         []string{"push", "pull_request"},
	}

	assert.True(t, reg.MatchesGitHub(42, "acme/widgets", "push"))
	assert.False(t, reg.MatchesGitHub(42, "acme/widgets", "issues"))
	assert.False(t, reg.MatchesGitHub(42, "acme/other", "push"))
	assert.False(t, reg.MatchesGitHub(7, "acme/widgets", "push"))

	// Empty event list matches every event type.
	reg.Events = nil
	assert.True(t, reg.MatchesGitHub(42, "acme/widgets", "issues"))

	reg.Enabled = false
	assert.False(t, reg.MatchesGitHub(42, "acme/widgets", "push"))
}

func TestSuspensionRecord_Due(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	timer := &SuspensionRecord{ExecutionID: "exec-1", NodeID: "delay-1", Kind: SuspensionKindTimer, DueAt: &past}
	assert.True(t, timer.Due(now))

	future := now.Add(time.Minute)
	timer.DueAt = &future
	assert.False(t, timer.Due(now))

	human := &SuspensionRecord{ExecutionID: "exec-1", NodeID: "approve-1", Kind: SuspensionKindHumanInput}
	assert.False(t, human.Due(now))
}

func TestNode_ErrorPolicy(t *testing.T) {
	node := &Node{ID: "n1", Type: NodeTypeAction, Subtype: "log"}
	assert.Equal(t, FailureActionStop, node.ErrorPolicy().Action)

	node.OnError = &FailurePolicy{Action: FailureActionRetry, MaxTries: 3}
	assert.Equal(t, FailureActionRetry, node.ErrorPolicy().Action)
	assert.Equal(t, 3, node.ErrorPolicy().MaxTries)
}

func TestWorkflow_TriggerNodes(t *testing.T) {
	wf := &Workflow{
		ID:   "wf-1",
		Name: "Sample",
		Nodes: []*Node{
			{ID: "trigger-1", Type: NodeTypeTrigger, Subtype: "manual"},
			{ID: "log-1", Type: NodeTypeAction, Subtype: "log"},
		},
		Triggers: []string{"trigger-1", "missing"},
	}

	nodes := wf.TriggerNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "trigger-1", nodes[0].ID)
}
