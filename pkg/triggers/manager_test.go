package triggers_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
	storememory "github.com/flowgrid/flowgrid/pkg/store/memory"
	"github.com/flowgrid/flowgrid/pkg/triggers"
)

type startCall struct {
	workflowID string
	trigger    models.TriggerInfo
}

// fakeStarter records dispatches and can be told to fail for a workflow.
type fakeStarter struct {
	calls      []startCall
	failFor    map[string]error
	executions int
}

func (s *fakeStarter) Run(_ context.Context, workflow *models.Workflow, trigger models.TriggerInfo) (*models.ExecutionState, error) {
	s.calls = append(s.calls, startCall{workflowID: workflow.ID, trigger: trigger})

	if err, ok := s.failFor[workflow.ID]; ok {
		return nil, err
	}

	s.executions++

	return &models.ExecutionState{
		ID:         "exec-" + workflow.ID,
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusSuccess,
	}, nil
}

type managerEnv struct {
	manager *triggers.Manager
	store   store.Store
	starter *fakeStarter
}

func newManagerEnv(t *testing.T, opts ...triggers.Option) *managerEnv {
	t.Helper()

	env := &managerEnv{
		store:   storememory.NewStore(),
		starter: &fakeStarter{failFor: map[string]error{}},
	}

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	env.manager = triggers.NewManager(logger, env.store, opts...)
	env.manager.Bind(env.starter)

	return env
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))

	return len(p), nil
}

func triggerWorkflow(id, subtype string, config map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Name:    "workflow " + id,
		Version: 1,
		Nodes: []*models.Node{
			{
				ID:      "trigger-1",
				Type:    models.NodeTypeTrigger,
				Subtype: subtype,
				Config:  config,
			},
		},
		Triggers: []string{"trigger-1"},
	}
}

func TestManager_ActivateWorkflow_RegistersTriggers(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-1", "webhook", map[string]any{"path": "/hooks/deploy"})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	registrations, err := env.manager.Status(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, registrations, 1)
	assert.Equal(t, models.TriggerTypeWebhook, registrations[0].Type)
	assert.Equal(t, "/hooks/deploy", registrations[0].WebhookPath)
	assert.True(t, registrations[0].Enabled)

	resolved, err := env.manager.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, resolved.ID)
}

func TestManager_ActivateWorkflow_InvalidCronExpression(t *testing.T) {
	env := newManagerEnv(t)

	workflow := triggerWorkflow("wf-1", "cron", map[string]any{"cron_expression": "not a schedule"})
	err := env.manager.ActivateWorkflow(context.Background(), workflow)
	require.Error(t, err)

	registrations, listErr := env.manager.Status(context.Background(), "wf-1")
	require.NoError(t, listErr)
	assert.Empty(t, registrations)
}

func TestManager_DeactivateWorkflow(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-1", "manual", nil)
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))
	require.NoError(t, env.manager.DeactivateWorkflow(ctx, "wf-1"))

	registrations, err := env.manager.Status(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, registrations)

	_, err = env.manager.TriggerManual(ctx, "wf-1", nil, false)
	require.ErrorIs(t, err, triggers.ErrNoMatchingTrigger)
}

func TestManager_TriggerManual(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-1", "manual", nil)
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	state, err := env.manager.TriggerManual(ctx, "wf-1", map[string]any{"who": "ana"}, false)
	require.NoError(t, err)
	assert.Equal(t, "exec-wf-1", state.ID)

	require.Len(t, env.starter.calls, 1)
	call := env.starter.calls[0]
	assert.Equal(t, models.TriggerTypeManual, call.trigger.Type)
	assert.Equal(t, "trigger-1", call.trigger.NodeID)
	assert.Equal(t, "ana", call.trigger.Payload["who"])
}

func TestManager_TriggerManual_ConfirmationRequired(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-1", "manual", map[string]any{"require_confirmation": true})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	_, err := env.manager.TriggerManual(ctx, "wf-1", nil, false)
	require.ErrorIs(t, err, triggers.ErrConfirmationRequired)
	assert.Empty(t, env.starter.calls)

	state, err := env.manager.TriggerManual(ctx, "wf-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "exec-wf-1", state.ID)
}

func TestManager_TriggerWebhook(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-hook", "webhook", map[string]any{"path": "/hooks/deploy"})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	state, err := env.manager.TriggerWebhook(ctx, "wf-hook", triggers.WebhookRequest{
		Method:  "POST",
		Path:    "/hooks/deploy",
		Headers: map[string]string{"X-Source": "ci"},
		Body:    []byte(`{"ref":"main"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-wf-hook", state.ID)

	require.Len(t, env.starter.calls, 1)
	payload := env.starter.calls[0].trigger.Payload
	assert.Equal(t, "POST", payload["method"])
	assert.Equal(t, "/hooks/deploy", payload["path"])

	body, ok := payload["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", body["ref"])
}

func TestManager_TriggerWebhook_PathMismatch(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-hook", "webhook", map[string]any{"path": "/hooks/deploy"})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	_, err := env.manager.TriggerWebhook(ctx, "wf-hook", triggers.WebhookRequest{Path: "/hooks/other"})
	require.ErrorIs(t, err, triggers.ErrNoMatchingTrigger)
	assert.Empty(t, env.starter.calls)
}

func TestManager_TriggerWebhook_NonJSONBody(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	workflow := triggerWorkflow("wf-hook", "webhook", map[string]any{"path": "/hooks/raw"})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	_, err := env.manager.TriggerWebhook(ctx, "wf-hook", triggers.WebhookRequest{
		Path: "/hooks/raw",
		Body: []byte("plain text body"),
	})
	require.NoError(t, err)

	body, ok := env.starter.calls[0].trigger.Payload["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plain text body", body["raw"])
}

func TestManager_TriggerGitHub_DispatchesAllMatchesIndependently(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	wfA := triggerWorkflow("wf-a", "github", map[string]any{
		"installation_id": float64(42),
		"repository":      "flowgrid/flowgrid",
		"events":          []any{"push"},
	})
	wfB := triggerWorkflow("wf-b", "github", map[string]any{
		"installation_id": float64(42),
		"repository":      "flowgrid/flowgrid",
	})
	wfC := triggerWorkflow("wf-c", "github", map[string]any{
		"installation_id": float64(42),
		"repository":      "flowgrid/docs",
	})

	for _, workflow := range []*models.Workflow{wfA, wfB, wfC} {
		require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))
	}

	env.starter.failFor["wf-a"] = errors.New("boom")

	results, err := env.manager.TriggerGitHub(ctx, 42, "flowgrid/flowgrid", "push", map[string]any{"after": "abc123"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byWorkflow := map[string]triggers.DispatchResult{}
	for _, result := range results {
		byWorkflow[result.WorkflowID] = result
	}

	require.Contains(t, byWorkflow, "wf-a")
	require.Contains(t, byWorkflow, "wf-b")
	assert.Error(t, byWorkflow["wf-a"].Err)
	require.NoError(t, byWorkflow["wf-b"].Err)
	assert.Equal(t, "exec-wf-b", byWorkflow["wf-b"].ExecutionID)

	payload := env.starter.calls[0].trigger.Payload
	assert.Equal(t, "abc123", payload["after"])
	assert.Equal(t, "push", payload["event_type"])
	assert.Equal(t, int64(42), payload["installation_id"])
}

func TestManager_TriggerEmail(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	addressed := triggerWorkflow("wf-support", "email", map[string]any{"address": "support@example.com"})
	catchAll := triggerWorkflow("wf-all", "email", nil)
	other := triggerWorkflow("wf-sales", "email", map[string]any{"address": "sales@example.com"})

	for _, workflow := range []*models.Workflow{addressed, catchAll, other} {
		require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))
	}

	results, err := env.manager.TriggerEmail(ctx, triggers.EmailMessage{
		To:      "support@example.com",
		From:    "user@example.com",
		Subject: "help",
		Body:    "it broke",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	dispatched := map[string]bool{}
	for _, result := range results {
		require.NoError(t, result.Err)
		dispatched[result.WorkflowID] = true
	}

	assert.True(t, dispatched["wf-support"])
	assert.True(t, dispatched["wf-all"])

	payload := env.starter.calls[0].trigger.Payload
	assert.Equal(t, "help", payload["subject"])
}

func TestManager_RunDueCron(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newManagerEnv(t, triggers.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	workflow := triggerWorkflow("wf-cron", "cron", map[string]any{"cron_expression": "*/5 * * * *"})
	require.NoError(t, env.manager.ActivateWorkflow(ctx, workflow))

	// Nothing due yet: activation schedules the first tick in the future.
	results, err := env.manager.RunDueCron(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	current = current.Add(6 * time.Minute)

	results, err = env.manager.RunDueCron(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "wf-cron", results[0].WorkflowID)
	assert.Equal(t, "exec-wf-cron", results[0].ExecutionID)

	// The schedule advanced, so an immediate second sweep fires nothing.
	results, err = env.manager.RunDueCron(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	registrations, err := env.manager.Status(ctx, "wf-cron")
	require.NoError(t, err)
	require.Len(t, registrations, 1)
	require.NotNil(t, registrations[0].NextDueAt)
	assert.True(t, registrations[0].NextDueAt.After(current))
}

func TestManager_Dispatch_UnboundStarter(t *testing.T) {
	st := storememory.NewStore()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	manager := triggers.NewManager(logger, st)

	workflow := triggerWorkflow("wf-1", "manual", nil)
	require.NoError(t, manager.ActivateWorkflow(context.Background(), workflow))

	_, err := manager.TriggerManual(context.Background(), "wf-1", nil, false)
	require.Error(t, err)
}
