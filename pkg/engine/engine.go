// Package engine executes workflow graphs. A run is a sequence of node
// invocations driven by a ready set derived from the persisted execution
// records; when a node suspends, the suspension record plus the node records
// are the whole continuation, so a resume after a process restart recomputes
// the ready set and picks up where the run left off.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowgrid/flowgrid/pkg/eventbus"
	"github.com/flowgrid/flowgrid/pkg/events"
	"github.com/flowgrid/flowgrid/pkg/graph"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/otelhelper"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/store"
)

// WorkflowProvider resolves workflow definitions for resume calls, which only
// carry an execution id.
type WorkflowProvider interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
}

// Engine runs and resumes workflow executions against a store.
type Engine struct {
	store     store.Store
	registry  *registry.Registry
	workflows WorkflowProvider
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventPublisher makes the engine publish lifecycle events.
func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTracer enables tracing spans around runs, resumes, and node execution.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// New builds an engine.
func New(logger *slog.Logger, st store.Store, reg *registry.Registry, workflows WorkflowProvider, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		registry:  reg,
		workflows: workflows,
		logger:    logger.With("module", "engine"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run validates the workflow, creates a new execution, and advances it until
// it completes, suspends, or fails. Node failures surface in the returned
// state's status, not as a Go error; errors are reserved for invalid input
// and store failures.
func (e *Engine) Run(ctx context.Context, workflow *models.Workflow, trigger models.TriggerInfo) (*models.ExecutionState, error) {
	ctx, end := e.startSpan(ctx, "engine.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(trigger.Type)),
	)

	state, err := e.run(ctx, workflow, trigger)
	end(err)

	return state, err
}

func (e *Engine) run(ctx context.Context, workflow *models.Workflow, trigger models.TriggerInfo) (*models.ExecutionState, error) {
	if configErrors := e.registry.ValidateWorkflow(workflow); len(configErrors) > 0 {
		return nil, &ValidationError{WorkflowID: workflow.ID, Errors: configErrors}
	}

	g, err := graph.New(workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}

	entry, err := resolveEntry(g, trigger)
	if err != nil {
		return nil, err
	}

	if trigger.Timestamp.IsZero() {
		trigger.Timestamp = e.now()
	}
	trigger.NodeID = entry.ID

	state := &models.ExecutionState{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusRunning,
		Trigger:    trigger,
		StartedAt:  e.now(),
	}

	// Only the fired trigger enters the graph; sibling entry points are
	// resolved as skipped so joins downstream of them settle.
	for _, id := range workflow.Triggers {
		record := state.Record(id)
		if id != entry.ID {
			record.Status = models.NodeStatusSkipped
		}
	}

	state.Record(entry.ID).Input = trigger.Payload

	if err := e.store.CreateExecution(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.publish(ctx, state, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, state.WorkflowID),
		ExecutionID: state.ID,
		TriggerType: trigger.Type,
		TriggerNode: entry.ID,
	})

	return e.advance(ctx, g, state)
}

func resolveEntry(g *graph.Graph, trigger models.TriggerInfo) (*models.Node, error) {
	if trigger.NodeID != "" {
		node := g.Node(trigger.NodeID)
		if node == nil || node.Type != models.NodeTypeTrigger {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTriggerNode, trigger.NodeID)
		}

		return node, nil
	}

	candidates := g.EntryPoints(trigger.Type)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no %s trigger", ErrUnknownTriggerNode, trigger.Type)
	}

	return candidates[0], nil
}

// advance drives the execution until nothing is ready: every step resolves
// skips, picks the first ready node in topological order, runs it, and
// persists the updated state.
func (e *Engine) advance(ctx context.Context, g *graph.Graph, state *models.ExecutionState) (*models.ExecutionState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		e.resolveSkips(g, state)

		nodeID, ok := e.nextReady(g, state)
		if !ok {
			return e.settle(ctx, state)
		}

		done, err := e.step(ctx, g, state, nodeID)
		if err != nil {
			return state, err
		}

		if done {
			return state, nil
		}
	}
}

// resolveSkips marks nodes whose join can no longer be satisfied as skipped.
// A single pass in topological order is enough: skips only propagate forward.
func (e *Engine) resolveSkips(g *graph.Graph, state *models.ExecutionState) {
	for _, nodeID := range g.Order() {
		record := state.Record(nodeID)
		if record.Status != models.NodeStatusPending {
			continue
		}

		if e.readiness(g, state, nodeID) == readinessSkip {
			record.Status = models.NodeStatusSkipped
		}
	}
}

func (e *Engine) nextReady(g *graph.Graph, state *models.ExecutionState) (string, bool) {
	for _, nodeID := range g.Order() {
		if state.Record(nodeID).Status != models.NodeStatusPending {
			continue
		}

		if e.readiness(g, state, nodeID) == readinessReady {
			return nodeID, true
		}
	}

	return "", false
}

type readiness int

const (
	readinessBlocked readiness = iota
	readinessReady
	readinessSkip
)

// readiness classifies a pending node: ready to run, blocked on predecessors
// still in flight, or skippable because its join can never be satisfied. The
// default join requires every incoming edge to have produced data on the
// connected port; runners may opt into "any" mode, where one produced edge is
// enough and skipped edges count as satisfied.
func (e *Engine) readiness(g *graph.Graph, state *models.ExecutionState, nodeID string) readiness {
	incoming := g.Incoming(nodeID)
	if len(incoming) == 0 {
		return readinessReady
	}

	mode := runner.InputModeAll

	node := g.Node(nodeID)
	if rn, err := e.registry.Resolve(node); err == nil {
		if im, ok := rn.(runner.InputModer); ok {
			mode = im.InputMode(node)
		}
	}

	var available, skipped, pending int

	for _, edge := range incoming {
		pred := state.Record(edge.From)

		switch pred.Status {
		case models.NodeStatusCompleted, models.NodeStatusFailed:
			// A failed predecessor still counts when its failure was
			// tolerated and produced a default output on this port.
			if _, produced := pred.Output[edge.FromPort]; produced {
				available++
			} else {
				// Unfired branch port.
				skipped++
			}
		case models.NodeStatusSkipped:
			skipped++
		default:
			pending++
		}
	}

	if mode == runner.InputModeAny {
		switch {
		case available > 0:
			return readinessReady
		case pending > 0:
			return readinessBlocked
		default:
			return readinessSkip
		}
	}

	switch {
	case pending > 0:
		return readinessBlocked
	case skipped > 0:
		return readinessSkip
	default:
		return readinessReady
	}
}

// assembleInput merges the port outputs of every completed predecessor, in
// connection declaration order.
func assembleInput(g *graph.Graph, state *models.ExecutionState, nodeID string) map[string]any {
	input := make(map[string]any)

	for _, edge := range g.Incoming(nodeID) {
		pred := state.Record(edge.From)
		if pred.Status != models.NodeStatusCompleted && pred.Status != models.NodeStatusFailed {
			continue
		}

		for k, v := range pred.Output[edge.FromPort] {
			input[k] = v
		}
	}

	return input
}

// step runs one node and applies its outcome. It reports done=true when the
// execution reached a state that ends this call (suspended or failed).
func (e *Engine) step(ctx context.Context, g *graph.Graph, state *models.ExecutionState, nodeID string) (bool, error) {
	node := g.Node(nodeID)

	rn, err := e.registry.Resolve(node)
	if err != nil {
		return false, fmt.Errorf("failed to resolve runner for node %s: %w", nodeID, err)
	}

	record := state.Record(nodeID)
	if record.Input == nil {
		record.Input = assembleInput(g, state, nodeID)
	}

	record.Status = models.NodeStatusRunning
	started := e.now()
	record.StartedAt = &started

	spanCtx, end := e.startSpan(ctx, "engine.node",
		attribute.String(otelhelper.ExecutionIDKey, state.ID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)

	outcome, tolerated := e.invoke(spanCtx, node, rn, state, record)
	end(outcome.Err)

	return e.applyOutcome(ctx, state, node, record, outcome, tolerated)
}

// invoke executes a runner under the node's failure policy. Retries re-invoke
// the same record. Under continue_with_default_output the failure is
// tolerated: the outcome carries the node's configured default so successors
// still receive data, and tolerated=true tells applyOutcome to record the
// node as failed rather than completed.
func (e *Engine) invoke(ctx context.Context, node *models.Node, rn runner.Runner, state *models.ExecutionState, record *models.NodeExecutionRecord) (runner.Outcome, bool) {
	policy := node.ErrorPolicy()

	maxTries := 1
	if policy.Action == models.FailureActionRetry && policy.MaxTries > 1 {
		maxTries = policy.MaxTries
	}

	ectx := runner.ExecutionContext{
		ExecutionID: state.ID,
		WorkflowID:  state.WorkflowID,
		Node:        node,
		Logger:      e.logger.With("execution_id", state.ID, "node_id", node.ID),
	}

	var outcome runner.Outcome

	for attempt := 1; attempt <= maxTries; attempt++ {
		record.Attempts++

		outcome = rn.Execute(ctx, ectx, record.Input)
		if outcome.Err == nil {
			return outcome, false
		}

		e.logger.Warn("node execution failed",
			"execution_id", state.ID,
			"node_id", node.ID,
			"attempt", record.Attempts,
			"error", outcome.Err,
		)

		e.publish(ctx, state, events.NodeFailed{
			BaseEvent:   events.NewBaseEvent(events.NodeFailedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			NodeID:      node.ID,
			Error:       outcome.Err.Error(),
			Attempts:    record.Attempts,
		})

		if attempt < maxTries {
			if err := sleepContext(ctx, policy.WaitBetweenTries); err != nil {
				return runner.Fail(err), false
			}
		}
	}

	if policy.Action == models.FailureActionContinue {
		record.Error = outcome.Err.Error()

		return runner.CompletedMain(defaultOutput(node)), true
	}

	return runner.Fail(&RunnerError{NodeID: node.ID, Attempts: record.Attempts, Err: outcome.Err}), false
}

func defaultOutput(node *models.Node) map[string]any {
	if value, ok := node.Config["default_output"].(map[string]any); ok {
		return value
	}

	return map[string]any{}
}

// applyOutcome persists the node result and transitions the execution when
// the outcome suspends or fails it. A tolerated failure keeps the node record
// failed while its default output flows downstream.
func (e *Engine) applyOutcome(ctx context.Context, state *models.ExecutionState, node *models.Node, record *models.NodeExecutionRecord, outcome runner.Outcome, tolerated bool) (bool, error) {
	ended := e.now()

	switch {
	case outcome.Err != nil:
		record.Status = models.NodeStatusFailed
		record.Error = outcome.Err.Error()
		record.EndedAt = &ended
		state.Status = models.ExecutionStatusError
		state.EndedAt = &ended

		if err := e.store.SaveExecution(ctx, state); err != nil {
			return false, fmt.Errorf("failed to persist failed execution: %w", err)
		}

		e.publish(ctx, state, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			NodeID:      node.ID,
			Error:       record.Error,
		})

		return true, nil

	case outcome.Suspension != nil:
		suspension := &models.SuspensionRecord{
			ExecutionID:    state.ID,
			NodeID:         node.ID,
			Kind:           outcome.Suspension.Kind,
			DueAt:          outcome.Suspension.DueAt,
			CorrelationKey: outcome.Suspension.CorrelationKey,
			CreatedAt:      e.now(),
		}

		// The suspension must be durable before the caller sees a waiting
		// state; otherwise a crash here would strand the execution.
		if err := e.store.SaveSuspension(ctx, suspension); err != nil {
			return false, fmt.Errorf("failed to persist suspension: %w", err)
		}

		record.Status = models.NodeStatusWaiting

		state.Status = models.ExecutionStatusWaiting
		if suspension.Kind == models.SuspensionKindHumanInput {
			state.Status = models.ExecutionStatusWaitingForHuman
		}

		if err := e.store.SaveExecution(ctx, state); err != nil {
			return false, fmt.Errorf("failed to persist suspended execution: %w", err)
		}

		e.publish(ctx, state, events.ExecutionSuspended{
			BaseEvent:   events.NewBaseEvent(events.ExecutionSuspendedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			NodeID:      node.ID,
			Kind:        suspension.Kind,
			DueAt:       suspension.DueAt,
		})

		return true, nil

	default:
		record.Status = models.NodeStatusCompleted
		if tolerated {
			record.Status = models.NodeStatusFailed
		}

		record.Output = outcome.Outputs
		record.EndedAt = &ended
		state.Sequence = append(state.Sequence, node.ID)

		if err := e.store.SaveExecution(ctx, state); err != nil {
			return false, fmt.Errorf("failed to persist execution: %w", err)
		}

		if tolerated {
			// NodeFailed already went out during invoke; successors still run.
			return false, nil
		}

		ports := make([]string, 0, len(outcome.Outputs))
		for port := range outcome.Outputs {
			ports = append(ports, port)
		}

		e.publish(ctx, state, events.NodeCompleted{
			BaseEvent:   events.NewBaseEvent(events.NodeCompletedEvent, state.WorkflowID),
			ExecutionID: state.ID,
			NodeID:      node.ID,
			Ports:       ports,
		})

		return false, nil
	}
}

// settle finalizes an execution that has no ready nodes: still-waiting nodes
// keep it suspended, otherwise it succeeded.
func (e *Engine) settle(ctx context.Context, state *models.ExecutionState) (*models.ExecutionState, error) {
	for _, record := range state.Records {
		if record.Status == models.NodeStatusWaiting {
			return state, nil
		}
	}

	ended := e.now()
	state.Status = models.ExecutionStatusSuccess
	state.EndedAt = &ended

	if err := e.store.SaveExecution(ctx, state); err != nil {
		return state, fmt.Errorf("failed to persist completed execution: %w", err)
	}

	e.publish(ctx, state, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, state.WorkflowID),
		ExecutionID: state.ID,
		Duration:    ended.Sub(state.StartedAt),
	})

	return state, nil
}

func (e *Engine) publish(ctx context.Context, state *models.ExecutionState, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, state.WorkflowID, event); err != nil {
		e.logger.Warn("failed to publish event",
			"event_type", string(event.GetType()),
			"execution_id", state.ID,
			"error", err,
		)
	}
}

// startSpan opens a tracing span when a tracer is configured; the returned
// func records the error, if any, and ends the span.
func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}

	ctx, span := e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
