// Package triggers dispatches external events to workflow executions. The
// manager owns trigger registrations: activating a workflow materializes one
// registration per trigger node, and inbound events (cron ticks, webhooks,
// GitHub deliveries, email, manual invocations) are matched against them to
// start executions.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgrid/flowgrid/pkg/eventbus"
	"github.com/flowgrid/flowgrid/pkg/events"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
)

var (
	// ErrWorkflowNotActive indicates a trigger call referenced a workflow
	// that has not been activated.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrNoMatchingTrigger indicates the event matched no registration of
	// the target workflow.
	ErrNoMatchingTrigger = errors.New("no matching trigger registration")

	// ErrConfirmationRequired indicates a manual trigger needs an explicit
	// confirmation before it runs.
	ErrConfirmationRequired = errors.New("trigger requires confirmation")
)

// Starter runs a workflow execution. Implemented by the engine.
type Starter interface {
	Run(ctx context.Context, workflow *models.Workflow, trigger models.TriggerInfo) (*models.ExecutionState, error)
}

// Manager matches external events against trigger registrations and starts
// executions. It also serves as the engine's workflow provider: resumes
// always target workflows that were activated here.
type Manager struct {
	store     store.Store
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	starter   Starter
	workflows map[string]*models.Workflow
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventPublisher makes the manager publish activation and dispatch
// events.
func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Manager) { m.publisher = publisher }
}

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a manager. Bind must be called with the engine before
// any trigger dispatch.
func NewManager(logger *slog.Logger, st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		logger:    logger.With("module", "trigger_manager"),
		now:       time.Now,
		workflows: make(map[string]*models.Workflow),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Bind attaches the execution starter. Separate from the constructor because
// the engine and the manager reference each other: the engine resolves
// workflows through the manager.
func (m *Manager) Bind(starter Starter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starter = starter
}

// WorkflowByID implements the engine's WorkflowProvider over the activated
// workflows.
func (m *Manager) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workflow, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotActive, id)
	}

	return workflow, nil
}

// ActivateWorkflow registers the workflow's trigger nodes for dispatch,
// replacing any previous registrations of the same workflow. Cron triggers
// get their first NextDueAt computed immediately.
func (m *Manager) ActivateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	registrations, err := m.buildRegistrations(workflow)
	if err != nil {
		return err
	}

	if err := m.store.DeleteTriggerRegistrations(ctx, workflow.ID); err != nil {
		return fmt.Errorf("failed to clear previous registrations: %w", err)
	}

	for _, registration := range registrations {
		if err := m.store.SaveTriggerRegistration(ctx, registration); err != nil {
			return fmt.Errorf("failed to save registration for node %s: %w", registration.NodeID, err)
		}
	}

	m.mu.Lock()
	m.workflows[workflow.ID] = workflow
	m.mu.Unlock()

	m.logger.Info("workflow activated",
		"workflow_id", workflow.ID,
		"trigger_count", len(registrations),
	)

	m.publishEvent(ctx, workflow.ID, events.WorkflowActivated{
		BaseEvent:    events.NewBaseEvent(events.WorkflowActivatedEvent, workflow.ID),
		TriggerCount: len(registrations),
	})

	return nil
}

func (m *Manager) buildRegistrations(workflow *models.Workflow) ([]*models.TriggerRegistration, error) {
	nodes := workflow.TriggerNodes()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("workflow %s has no trigger nodes", workflow.ID)
	}

	now := m.now()
	registrations := make([]*models.TriggerRegistration, 0, len(nodes))

	for _, node := range nodes {
		registration := &models.TriggerRegistration{
			ID:         uuid.NewString(),
			WorkflowID: workflow.ID,
			NodeID:     node.ID,
			Type:       models.TriggerType(node.Subtype),
			Enabled:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		config := node.Config

		switch registration.Type {
		case models.TriggerTypeCron:
			registration.CronExpression, _ = config["cron_expression"].(string)
			if err := registration.ScheduleNext(now); err != nil {
				return nil, fmt.Errorf("node %s: invalid cron expression: %w", node.ID, err)
			}
		case models.TriggerTypeManual:
			registration.RequireConfirmation, _ = config["require_confirmation"].(bool)
		case models.TriggerTypeWebhook:
			registration.WebhookPath, _ = config["path"].(string)
		case models.TriggerTypeGitHub:
			if id, ok := config["installation_id"].(float64); ok {
				registration.InstallationID = int64(id)
			}

			registration.Repository, _ = config["repository"].(string)

			if raw, ok := config["events"].([]any); ok {
				for _, event := range raw {
					if s, ok := event.(string); ok {
						registration.Events = append(registration.Events, s)
					}
				}
			}
		case models.TriggerTypeEmail:
			registration.EmailAddress, _ = config["address"].(string)
		}

		if err := registration.Validate(); err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}

		registrations = append(registrations, registration)
	}

	return registrations, nil
}

// DeactivateWorkflow removes the workflow's registrations; in-flight
// executions are untouched.
func (m *Manager) DeactivateWorkflow(ctx context.Context, workflowID string) error {
	if err := m.store.DeleteTriggerRegistrations(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete registrations: %w", err)
	}

	m.mu.Lock()
	delete(m.workflows, workflowID)
	m.mu.Unlock()

	m.logger.Info("workflow deactivated", "workflow_id", workflowID)

	m.publishEvent(ctx, workflowID, events.WorkflowDeactivated{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeactivatedEvent, workflowID),
	})

	return nil
}

// Status lists the current registrations of a workflow.
func (m *Manager) Status(ctx context.Context, workflowID string) ([]*models.TriggerRegistration, error) {
	return m.store.TriggerRegistrations(ctx, workflowID)
}

// Health reports whether the manager can reach its store.
func (m *Manager) Health(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

func (m *Manager) runner() (Starter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.starter == nil {
		return nil, errors.New("trigger manager is not bound to an engine")
	}

	return m.starter, nil
}

// dispatch starts one execution for a matched registration.
func (m *Manager) dispatch(ctx context.Context, registration *models.TriggerRegistration, payload map[string]any) (*models.ExecutionState, error) {
	starter, err := m.runner()
	if err != nil {
		return nil, err
	}

	workflow, err := m.WorkflowByID(ctx, registration.WorkflowID)
	if err != nil {
		return nil, err
	}

	info := models.TriggerInfo{
		Type:      registration.Type,
		NodeID:    registration.NodeID,
		Payload:   payload,
		Timestamp: m.now(),
	}

	state, err := starter.Run(ctx, workflow, info)
	if err != nil {
		return nil, err
	}

	m.publishEvent(ctx, workflow.ID, events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, workflow.ID),
		TriggerType: registration.Type,
		NodeID:      registration.NodeID,
		ExecutionID: state.ID,
	})

	return state, nil
}

func (m *Manager) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.Warn("failed to publish event",
			"event_type", string(event.GetType()),
			"error", err,
		)
	}
}

// decodeWebhookBody parses a webhook request body as JSON; bodies that do not
// parse are passed through raw instead of being rejected.
func decodeWebhookBody(body []byte) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload
	}

	return map[string]any{"raw": string(body)}
}
