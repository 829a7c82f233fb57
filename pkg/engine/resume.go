package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flowgrid/flowgrid/pkg/events"
	"github.com/flowgrid/flowgrid/pkg/graph"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/otelhelper"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/store"
)

// ResumeWithUserInput resumes the human-input suspension registered under the
// correlation key, injecting the responder's payload.
func (e *Engine) ResumeWithUserInput(ctx context.Context, correlationKey string, payload map[string]any) (*models.ExecutionState, error) {
	suspension, err := e.store.SuspensionByCorrelation(ctx, correlationKey)
	if err != nil {
		return nil, err
	}

	if suspension.Kind != models.SuspensionKindHumanInput {
		return nil, fmt.Errorf("%w: correlation key %s is not awaiting human input", store.ErrSuspensionNotFound, correlationKey)
	}

	return e.resume(ctx, suspension, payload)
}

// ResumeExternal resumes the external-wait suspension registered under the
// correlation key.
func (e *Engine) ResumeExternal(ctx context.Context, correlationKey string, payload map[string]any) (*models.ExecutionState, error) {
	suspension, err := e.store.SuspensionByCorrelation(ctx, correlationKey)
	if err != nil {
		return nil, err
	}

	if suspension.Kind != models.SuspensionKindExternalWait {
		return nil, fmt.Errorf("%w: correlation key %s is not awaiting an external event", store.ErrSuspensionNotFound, correlationKey)
	}

	return e.resume(ctx, suspension, payload)
}

// ResumeTimer resumes one timer suspension directly, regardless of its due
// time.
func (e *Engine) ResumeTimer(ctx context.Context, executionID, nodeID string) (*models.ExecutionState, error) {
	suspension, err := e.store.Suspension(ctx, executionID, nodeID, models.SuspensionKindTimer)
	if err != nil {
		return nil, err
	}

	return e.resume(ctx, suspension, nil)
}

// ResumeDueTimers sweeps timer suspensions due at the engine's current time
// and resumes each. A failure on one execution does not block the others; the
// ids of successfully resumed executions are returned alongside the first
// error encountered.
func (e *Engine) ResumeDueTimers(ctx context.Context) ([]string, error) {
	due, err := e.store.DueSuspensions(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list due timers: %w", err)
	}

	var (
		resumed  []string
		firstErr error
	)

	for _, suspension := range due {
		if _, err := e.resume(ctx, suspension, nil); err != nil {
			e.logger.Error("failed to resume due timer",
				"execution_id", suspension.ExecutionID,
				"node_id", suspension.NodeID,
				"error", err,
			)

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		resumed = append(resumed, suspension.ExecutionID)
	}

	return resumed, firstErr
}

// Cancel transitions a running or waiting execution to canceled and drops its
// suspensions.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*models.ExecutionState, error) {
	state, err := e.store.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if state.Status.Terminal() {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrNotCancelable, executionID, state.Status)
	}

	ended := e.now()
	state.Status = models.ExecutionStatusCanceled
	state.EndedAt = &ended

	if err := e.store.SaveExecution(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist canceled execution: %w", err)
	}

	for _, record := range state.Records {
		if record.Status != models.NodeStatusWaiting {
			continue
		}

		if err := e.store.DeleteSuspension(ctx, state.ID, record.NodeID); err != nil {
			e.logger.Warn("failed to delete suspension of canceled execution",
				"execution_id", state.ID,
				"node_id", record.NodeID,
				"error", err,
			)
		}
	}

	e.publish(ctx, state, events.ExecutionCanceled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCanceledEvent, state.WorkflowID),
		ExecutionID: state.ID,
	})

	return state, nil
}

// resume completes a suspended node and advances the execution. The node's
// runner decides how the injected payload maps onto output ports; runners
// without resume behavior complete with the payload on the default port.
func (e *Engine) resume(ctx context.Context, suspension *models.SuspensionRecord, injected map[string]any) (*models.ExecutionState, error) {
	ctx, end := e.startSpan(ctx, "engine.resume",
		attribute.String(otelhelper.ExecutionIDKey, suspension.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, suspension.NodeID),
	)

	state, err := e.doResume(ctx, suspension, injected)
	end(err)

	return state, err
}

func (e *Engine) doResume(ctx context.Context, suspension *models.SuspensionRecord, injected map[string]any) (*models.ExecutionState, error) {
	state, err := e.store.ExecutionByID(ctx, suspension.ExecutionID)
	if err != nil {
		return nil, err
	}

	if !state.Status.Resumable() {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrNotResumable, state.ID, state.Status)
	}

	workflow, err := e.workflows.WorkflowByID(ctx, state.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", state.WorkflowID, err)
	}

	g, err := graph.New(workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}

	node := g.Node(suspension.NodeID)
	if node == nil {
		return nil, fmt.Errorf("suspended node %s no longer exists in workflow %s", suspension.NodeID, workflow.ID)
	}

	rn, err := e.registry.Resolve(node)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve runner for node %s: %w", node.ID, err)
	}

	record := state.Record(node.ID)

	ectx := runner.ExecutionContext{
		ExecutionID: state.ID,
		WorkflowID:  state.WorkflowID,
		Node:        node,
		Logger:      e.logger.With("execution_id", state.ID, "node_id", node.ID),
	}

	var outcome runner.Outcome
	if resumer, ok := rn.(runner.Resumer); ok {
		outcome = resumer.Resume(ctx, ectx, record.Input, injected)
	} else {
		outcome = runner.CompletedMain(injected)
	}

	state.Status = models.ExecutionStatusRunning

	e.publish(ctx, state, events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, state.WorkflowID),
		ExecutionID: state.ID,
		NodeID:      node.ID,
		Kind:        suspension.Kind,
	})

	done, err := e.applyOutcome(ctx, state, node, record, outcome, false)
	if err != nil {
		return state, err
	}

	// The execution state is saved; the stale suspension must not fire
	// again. A re-suspended node keeps its fresh record (the upsert above
	// replaced it), so only settled nodes drop theirs. A failure here is
	// logged, not fatal: resuming an already completed node is rejected by
	// the resumable check above.
	if record.Status != models.NodeStatusWaiting {
		if deleteErr := e.store.DeleteSuspension(ctx, state.ID, node.ID); deleteErr != nil {
			e.logger.Warn("failed to delete consumed suspension",
				"execution_id", state.ID,
				"node_id", node.ID,
				"error", deleteErr,
			)
		}
	}

	if done {
		return state, nil
	}

	return e.advance(ctx, g, state)
}
