package triggers

import (
	"context"
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/models"
)

// DispatchResult is the per-workflow outcome of a fan-out dispatch. Failures
// are carried per entry so one workflow's failure does not hide another's
// execution.
type DispatchResult struct {
	WorkflowID  string
	NodeID      string
	ExecutionID string
	Err         error
}

// TriggerManual starts a workflow from its manual trigger. Registrations
// configured to require confirmation are rejected with
// ErrConfirmationRequired unless confirmed is set.
func (m *Manager) TriggerManual(ctx context.Context, workflowID string, payload map[string]any, confirmed bool) (*models.ExecutionState, error) {
	registrations, err := m.store.TriggerRegistrations(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	for _, registration := range registrations {
		if registration.Type != models.TriggerTypeManual || !registration.Enabled {
			continue
		}

		if registration.RequireConfirmation && !confirmed {
			return nil, fmt.Errorf("%w: workflow %s", ErrConfirmationRequired, workflowID)
		}

		return m.dispatch(ctx, registration, payload)
	}

	return nil, fmt.Errorf("%w: workflow %s has no manual trigger", ErrNoMatchingTrigger, workflowID)
}

// WebhookRequest carries the transport-level fields of an inbound webhook
// call. They are packaged verbatim into the trigger payload; the body is
// additionally parsed as JSON when it looks like JSON.
type WebhookRequest struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Query      map[string]string `json:"query"`
	RemoteAddr string            `json:"remote_addr"`
	Body       []byte            `json:"-"`
}

// TriggerWebhook starts the workflow from its webhook trigger node. A
// registration with a configured path only matches requests on that path;
// a registration without a path matches any.
func (m *Manager) TriggerWebhook(ctx context.Context, workflowID string, req WebhookRequest) (*models.ExecutionState, error) {
	registrations, err := m.store.TriggerRegistrations(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	for _, registration := range registrations {
		if registration.Type != models.TriggerTypeWebhook || !registration.Enabled {
			continue
		}

		if registration.WebhookPath != "" && registration.WebhookPath != req.Path {
			continue
		}

		payload := map[string]any{
			"method":      req.Method,
			"path":        req.Path,
			"headers":     req.Headers,
			"query":       req.Query,
			"remote_addr": req.RemoteAddr,
			"body":        decodeWebhookBody(req.Body),
		}

		return m.dispatch(ctx, registration, payload)
	}

	return nil, fmt.Errorf("%w: workflow %s has no webhook trigger for path %s", ErrNoMatchingTrigger, workflowID, req.Path)
}

// TriggerGitHub dispatches a GitHub event delivery. Matching runs across the
// registrations of every active workflow: same installation, same repository,
// and an event filter that is empty or contains the event type. Each match is
// dispatched independently.
func (m *Manager) TriggerGitHub(ctx context.Context, installationID int64, repository, eventType string, payload map[string]any) ([]DispatchResult, error) {
	matched, err := m.store.MatchGitHubTriggers(ctx, installationID, repository, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to match github triggers: %w", err)
	}

	enriched := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["installation_id"] = installationID
	enriched["repository"] = repository
	enriched["event_type"] = eventType

	return m.dispatchAll(ctx, matched, enriched), nil
}

// EmailMessage is an inbound email delivery.
type EmailMessage struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TriggerEmail dispatches an inbound email to every registration whose
// address filter is empty or equals the recipient.
func (m *Manager) TriggerEmail(ctx context.Context, msg EmailMessage) ([]DispatchResult, error) {
	matched, err := m.store.MatchEmailTriggers(ctx, msg.To)
	if err != nil {
		return nil, fmt.Errorf("failed to match email triggers: %w", err)
	}

	payload := map[string]any{
		"to":      msg.To,
		"from":    msg.From,
		"subject": msg.Subject,
		"body":    msg.Body,
	}

	return m.dispatchAll(ctx, matched, payload), nil
}

// RunDueCron fires every cron registration whose next fire time has arrived.
// The next fire time is advanced and persisted before the dispatch, so a
// dispatch failure cannot make a tick fire twice.
func (m *Manager) RunDueCron(ctx context.Context) ([]DispatchResult, error) {
	now := m.now()

	due, err := m.store.DueCronTriggers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due cron triggers: %w", err)
	}

	results := make([]DispatchResult, 0, len(due))

	for _, registration := range due {
		firedAt := registration.NextDueAt

		if err := registration.ScheduleNext(now); err != nil {
			results = append(results, DispatchResult{
				WorkflowID: registration.WorkflowID,
				NodeID:     registration.NodeID,
				Err:        fmt.Errorf("failed to reschedule: %w", err),
			})

			continue
		}

		if err := m.store.SaveTriggerRegistration(ctx, registration); err != nil {
			results = append(results, DispatchResult{
				WorkflowID: registration.WorkflowID,
				NodeID:     registration.NodeID,
				Err:        fmt.Errorf("failed to persist schedule: %w", err),
			})

			continue
		}

		payload := map[string]any{"cron_expression": registration.CronExpression}
		if firedAt != nil {
			payload["scheduled_for"] = firedAt.UTC()
		}

		results = append(results, m.dispatchOne(ctx, registration, payload))
	}

	return results, nil
}

func (m *Manager) dispatchAll(ctx context.Context, registrations []*models.TriggerRegistration, payload map[string]any) []DispatchResult {
	results := make([]DispatchResult, 0, len(registrations))

	for _, registration := range registrations {
		results = append(results, m.dispatchOne(ctx, registration, payload))
	}

	return results
}

func (m *Manager) dispatchOne(ctx context.Context, registration *models.TriggerRegistration, payload map[string]any) DispatchResult {
	result := DispatchResult{
		WorkflowID: registration.WorkflowID,
		NodeID:     registration.NodeID,
	}

	state, err := m.dispatch(ctx, registration, payload)
	if err != nil {
		m.logger.Error("trigger dispatch failed",
			"workflow_id", registration.WorkflowID,
			"node_id", registration.NodeID,
			"trigger_type", string(registration.Type),
			"error", err,
		)

		result.Err = err

		return result
	}

	result.ExecutionID = state.ID

	return result
}
