package engine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/pkg/engine"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/runners/flow"
	"github.com/flowgrid/flowgrid/pkg/runners/human"
	"github.com/flowgrid/flowgrid/pkg/runners/trigger"
	storememory "github.com/flowgrid/flowgrid/pkg/store/memory"
)

type workflowProvider map[string]*models.Workflow

func (p workflowProvider) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	workflow, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", id)
	}

	return workflow, nil
}

// record is a stub runner that notes each invocation and passes input
// through with its node id appended.
type recordRunner struct {
	calls *[]string
}

func (r *recordRunner) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	*r.calls = append(*r.calls, ectx.Node.ID)

	output := make(map[string]any, len(input))
	for k, v := range input {
		output[k] = v
	}
	output["last_node"] = ectx.Node.ID

	return runner.CompletedMain(output)
}

func (r *recordRunner) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

// flaky fails until its remaining counter runs out.
type flakyRunner struct {
	remaining *int
}

func (r *flakyRunner) Execute(_ context.Context, _ runner.ExecutionContext, _ map[string]any) runner.Outcome {
	if *r.remaining > 0 {
		*r.remaining--

		return runner.Failf("transient failure")
	}

	return runner.CompletedMain(map[string]any{"recovered": true})
}

func (r *flakyRunner) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

type testEnv struct {
	engine    *engine.Engine
	store     *storememory.Store
	registry  *registry.Registry
	workflows workflowProvider
	calls     []string
	failures  int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		store:     storememory.NewStore(),
		registry:  registry.NewRegistry(logger),
		workflows: workflowProvider{},
	}

	flow.Register(env.registry)
	human.Register(env.registry)
	trigger.Register(env.registry)
	env.registry.Register(runner.Key{Type: models.NodeTypeAction, Subtype: "record"}, &recordRunner{calls: &env.calls})
	env.registry.Register(runner.Key{Type: models.NodeTypeAction, Subtype: "flaky"}, &flakyRunner{remaining: &env.failures})

	env.engine = engine.New(logger, env.store, env.registry, env.workflows)

	return env
}

func triggerNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeTrigger, Subtype: "manual", Config: map[string]any{}}
}

func recordNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeAction, Subtype: "record", Config: map[string]any{}}
}

func conn(source, target string) *models.Connection {
	return &models.Connection{SourcePort: source, TargetPort: target}
}

func manualTrigger() models.TriggerInfo {
	return models.TriggerInfo{Type: models.TriggerTypeManual, Payload: map[string]any{"kicked_by": "test"}}
}

func (env *testEnv) add(workflow *models.Workflow) {
	env.workflows[workflow.ID] = workflow
}

func TestRun_LinearOrdering(t *testing.T) {
	env := newTestEnv(t)

	workflow := &models.Workflow{
		ID:       "wf-linear",
		Name:     "linear",
		Nodes:    []*models.Node{triggerNode("t"), recordNode("a"), recordNode("b")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "a:main"),
			conn("a:main", "b:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, []string{"t", "a", "b"}, state.Sequence)
	assert.Equal(t, []string{"a", "b"}, env.calls)
	assert.Equal(t, "test", state.Records["a"].Input["kicked_by"])
	require.NotNil(t, state.EndedAt)
}

func TestRun_BranchSkipsUnfiredPath(t *testing.T) {
	env := newTestEnv(t)

	branch := &models.Node{
		ID: "branch", Type: models.NodeTypeFlow, Subtype: flow.SubtypeBranch,
		Config: map[string]any{"condition": "{{.input.go_left}}"},
	}

	workflow := &models.Workflow{
		ID:       "wf-branch",
		Name:     "branching",
		Nodes:    []*models.Node{triggerNode("t"), branch, recordNode("left"), recordNode("right")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "branch:main"),
			conn("branch:true", "left:main"),
			conn("branch:false", "right:main"),
		},
	}
	env.add(workflow)

	info := models.TriggerInfo{Type: models.TriggerTypeManual, Payload: map[string]any{"go_left": true}}

	state, err := env.engine.Run(t.Context(), workflow, info)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, models.NodeStatusCompleted, state.Records["left"].Status)
	assert.Equal(t, models.NodeStatusSkipped, state.Records["right"].Status)
	assert.Equal(t, []string{"left"}, env.calls)
}

func TestRun_JoinWithSkippedPredecessorSkips(t *testing.T) {
	env := newTestEnv(t)

	branch := &models.Node{
		ID: "branch", Type: models.NodeTypeFlow, Subtype: flow.SubtypeBranch,
		Config: map[string]any{"condition": "true"},
	}

	// join requires both branch sides; the unfired side propagates its skip.
	workflow := &models.Workflow{
		ID:       "wf-join-all",
		Name:     "join all",
		Nodes:    []*models.Node{triggerNode("t"), branch, recordNode("left"), recordNode("right"), recordNode("join")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "branch:main"),
			conn("branch:true", "left:main"),
			conn("branch:false", "right:main"),
			conn("left:main", "join:main"),
			conn("right:main", "join:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, models.NodeStatusSkipped, state.Records["join"].Status)
	assert.NotContains(t, env.calls, "join")
}

func TestRun_MergeAnyJoinsPartialBranches(t *testing.T) {
	env := newTestEnv(t)

	branch := &models.Node{
		ID: "branch", Type: models.NodeTypeFlow, Subtype: flow.SubtypeBranch,
		Config: map[string]any{"condition": "true"},
	}
	merge := &models.Node{
		ID: "merge", Type: models.NodeTypeFlow, Subtype: flow.SubtypeMerge,
		Config: map[string]any{"mode": "any"},
	}

	workflow := &models.Workflow{
		ID:       "wf-merge-any",
		Name:     "merge any",
		Nodes:    []*models.Node{triggerNode("t"), branch, recordNode("left"), recordNode("right"), merge, recordNode("after")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "branch:main"),
			conn("branch:true", "left:main"),
			conn("branch:false", "right:main"),
			conn("left:main", "merge:main"),
			conn("right:main", "merge:main"),
			conn("merge:main", "after:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, models.NodeStatusCompleted, state.Records["merge"].Status)
	assert.Equal(t, models.NodeStatusCompleted, state.Records["after"].Status)
}

func TestRun_HumanApprovalPauseAndResume(t *testing.T) {
	env := newTestEnv(t)

	approval := &models.Node{
		ID: "approve", Type: models.NodeTypeHuman, Subtype: human.SubtypeApproval,
		Config: map[string]any{"correlation_key": "ticket-1"},
	}

	workflow := &models.Workflow{
		ID:       "wf-hil",
		Name:     "approval gate",
		Nodes:    []*models.Node{triggerNode("t"), approval, recordNode("granted"), recordNode("denied")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "approve:main"),
			conn("approve:confirmed", "granted:main"),
			conn("approve:rejected", "denied:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaitingForHuman, state.Status)
	assert.Equal(t, models.NodeStatusWaiting, state.Records["approve"].Status)

	// The suspension survives a reload of the state.
	reloaded, err := env.store.ExecutionByID(t.Context(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaitingForHuman, reloaded.Status)

	resumed, err := env.engine.ResumeWithUserInput(t.Context(), "ticket-1", map[string]any{"approved": true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, models.NodeStatusCompleted, resumed.Records["granted"].Status)
	assert.Equal(t, models.NodeStatusSkipped, resumed.Records["denied"].Status)
}

func TestRun_HumanApprovalRejection(t *testing.T) {
	env := newTestEnv(t)

	approval := &models.Node{
		ID: "approve", Type: models.NodeTypeHuman, Subtype: human.SubtypeApproval,
		Config: map[string]any{"correlation_key": "ticket-2"},
	}

	workflow := &models.Workflow{
		ID:       "wf-hil-reject",
		Name:     "approval gate",
		Nodes:    []*models.Node{triggerNode("t"), approval, recordNode("granted"), recordNode("denied")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "approve:main"),
			conn("approve:confirmed", "granted:main"),
			conn("approve:rejected", "denied:main"),
		},
	}
	env.add(workflow)

	_, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	resumed, err := env.engine.ResumeWithUserInput(t.Context(), "ticket-2", map[string]any{"approved": false})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, models.NodeStatusSkipped, resumed.Records["granted"].Status)
	assert.Equal(t, models.NodeStatusCompleted, resumed.Records["denied"].Status)
}

func TestRun_DelayZeroDurationResumesViaSweep(t *testing.T) {
	env := newTestEnv(t)

	delay := &models.Node{
		ID: "pause", Type: models.NodeTypeFlow, Subtype: flow.SubtypeDelay,
		Config: map[string]any{"duration_seconds": 0.0},
	}

	workflow := &models.Workflow{
		ID:       "wf-delay",
		Name:     "zero delay",
		Nodes:    []*models.Node{triggerNode("t"), delay, recordNode("after")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "pause:main"),
			conn("pause:main", "after:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, state.Status)

	resumed, err := env.engine.ResumeDueTimers(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{state.ID}, resumed)

	final, err := env.store.ExecutionByID(t.Context(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, final.Status)
	assert.Equal(t, models.NodeStatusCompleted, final.Records["after"].Status)
}

func TestRun_WaitResumesViaExternalCallback(t *testing.T) {
	env := newTestEnv(t)

	wait := &models.Node{
		ID: "hold", Type: models.NodeTypeFlow, Subtype: flow.SubtypeWait,
		Config: map[string]any{"correlation_key": "callback-9"},
	}

	workflow := &models.Workflow{
		ID:       "wf-wait",
		Name:     "external wait",
		Nodes:    []*models.Node{triggerNode("t"), wait, recordNode("after")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "hold:main"),
			conn("hold:main", "after:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, state.Status)

	resumed, err := env.engine.ResumeExternal(t.Context(), "callback-9", map[string]any{"delivered": true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, true, resumed.Records["after"].Input["delivered"])
}

func TestRun_RetryPolicyRecovers(t *testing.T) {
	env := newTestEnv(t)
	env.failures = 2

	flaky := &models.Node{
		ID: "unstable", Type: models.NodeTypeAction, Subtype: "flaky",
		Config:  map[string]any{},
		OnError: &models.FailurePolicy{Action: models.FailureActionRetry, MaxTries: 3},
	}

	workflow := &models.Workflow{
		ID:       "wf-retry",
		Name:     "retrying",
		Nodes:    []*models.Node{triggerNode("t"), flaky},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "unstable:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, 3, state.Records["unstable"].Attempts)
}

func TestRun_RetryPolicyExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.failures = 10

	flaky := &models.Node{
		ID: "unstable", Type: models.NodeTypeAction, Subtype: "flaky",
		Config:  map[string]any{},
		OnError: &models.FailurePolicy{Action: models.FailureActionRetry, MaxTries: 2},
	}

	workflow := &models.Workflow{
		ID:          "wf-retry-fail",
		Name:        "exhausted",
		Nodes:       []*models.Node{triggerNode("t"), flaky},
		Triggers:    []string{"t"},
		Connections: []*models.Connection{conn("t:main", "unstable:main")},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, state.Status)
	assert.Equal(t, models.NodeStatusFailed, state.Records["unstable"].Status)
	assert.Equal(t, 2, state.Records["unstable"].Attempts)
}

func TestRun_ContinuePolicyUsesDefaultOutput(t *testing.T) {
	env := newTestEnv(t)
	env.failures = 10

	flaky := &models.Node{
		ID: "unstable", Type: models.NodeTypeAction, Subtype: "flaky",
		Config:  map[string]any{"default_output": map[string]any{"fallback": true}},
		OnError: &models.FailurePolicy{Action: models.FailureActionContinue},
	}

	workflow := &models.Workflow{
		ID:       "wf-continue",
		Name:     "continue on error",
		Nodes:    []*models.Node{triggerNode("t"), flaky, recordNode("after")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "unstable:main"),
			conn("unstable:main", "after:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	// The tolerated failure stays visible on the record while its default
	// output flows downstream; the execution as a whole still succeeds.
	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)
	assert.Equal(t, models.NodeStatusFailed, state.Records["unstable"].Status)
	assert.NotEmpty(t, state.Records["unstable"].Error)
	assert.Equal(t, map[string]any{"fallback": true}, state.Records["unstable"].Output[models.DefaultPort])
	assert.Equal(t, models.NodeStatusCompleted, state.Records["after"].Status)
	assert.Equal(t, true, state.Records["after"].Input["fallback"])
}

func TestRun_ForRangeAggregation(t *testing.T) {
	env := newTestEnv(t)

	loop := &models.Node{
		ID: "loop", Type: models.NodeTypeFlow, Subtype: flow.SubtypeForRange,
		Config: map[string]any{"start": 1.0, "end": 3.0, "step": 1.0},
	}

	workflow := &models.Workflow{
		ID:       "wf-loop",
		Name:     "range loop",
		Nodes:    []*models.Node{triggerNode("t"), loop, recordNode("after")},
		Triggers: []string{"t"},
		Connections: []*models.Connection{
			conn("t:main", "loop:main"),
			conn("loop:main", "after:main"),
		},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, state.Status)

	entries := state.Records["after"].Input["iteration"].([]any)
	require.Len(t, entries, 3)
	assert.InDelta(t, 1.0, entries[0].(map[string]any)["value"], 0.0001)
	assert.InDelta(t, 3.0, entries[2].(map[string]any)["value"], 0.0001)
}

func TestCancel_WaitingExecution(t *testing.T) {
	env := newTestEnv(t)

	wait := &models.Node{
		ID: "hold", Type: models.NodeTypeFlow, Subtype: flow.SubtypeWait,
		Config: map[string]any{"correlation_key": "cancel-me"},
	}

	workflow := &models.Workflow{
		ID:          "wf-cancel",
		Name:        "cancelable",
		Nodes:       []*models.Node{triggerNode("t"), wait},
		Triggers:    []string{"t"},
		Connections: []*models.Connection{conn("t:main", "hold:main")},
	}
	env.add(workflow)

	state, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, state.Status)

	canceled, err := env.engine.Cancel(t.Context(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, canceled.Status)

	// A second cancel is rejected, and the consumed suspension is gone.
	_, err = env.engine.Cancel(t.Context(), state.ID)
	require.ErrorIs(t, err, engine.ErrNotCancelable)

	_, err = env.engine.ResumeExternal(t.Context(), "cancel-me", nil)
	require.Error(t, err)
}

func TestRun_ValidationFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)

	invalid := &models.Node{
		ID: "bad-sort", Type: models.NodeTypeFlow, Subtype: flow.SubtypeSort,
		Config: map[string]any{}, // missing required "key"
	}

	workflow := &models.Workflow{
		ID:          "wf-invalid",
		Name:        "invalid config",
		Nodes:       []*models.Node{triggerNode("t"), invalid},
		Triggers:    []string{"t"},
		Connections: []*models.Connection{conn("t:main", "bad-sort:main")},
	}
	env.add(workflow)

	_, err := env.engine.Run(t.Context(), workflow, manualTrigger())
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))

	// Nothing was persisted.
	executions, listErr := env.store.ExecutionsByWorkflow(t.Context(), "wf-invalid")
	require.NoError(t, listErr)
	assert.Empty(t, executions)
}

func TestResume_UnknownCorrelationKey(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ResumeWithUserInput(t.Context(), "no-such-key", nil)
	require.Error(t, err)
}
