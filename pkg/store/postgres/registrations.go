package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
)

// SaveTriggerRegistration upserts a registration. The matchable columns are
// lifted out of the JSON document so dispatch queries stay indexable.
func (s *Store) SaveTriggerRegistration(ctx context.Context, registration *models.TriggerRegistration) error {
	data, err := json.Marshal(registration)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger registration: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trigger_registrations
			(id, workflow_id, node_id, trigger_type, enabled, next_due_at,
			 installation_id, repository, webhook_path, email_address, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			node_id = EXCLUDED.node_id,
			trigger_type = EXCLUDED.trigger_type,
			enabled = EXCLUDED.enabled,
			next_due_at = EXCLUDED.next_due_at,
			installation_id = EXCLUDED.installation_id,
			repository = EXCLUDED.repository,
			webhook_path = EXCLUDED.webhook_path,
			email_address = EXCLUDED.email_address,
			data = EXCLUDED.data`,
		registration.ID, registration.WorkflowID, registration.NodeID,
		string(registration.Type), registration.Enabled, registration.NextDueAt,
		nullInt64(registration.InstallationID), nullString(registration.Repository),
		nullString(registration.WebhookPath), nullString(registration.EmailAddress), data,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trigger registration: %w", err)
	}

	return nil
}

// TriggerRegistrations lists the registrations of one workflow.
func (s *Store) TriggerRegistrations(ctx context.Context, workflowID string) ([]*models.TriggerRegistration, error) {
	return s.queryRegistrations(ctx, `
		SELECT data FROM trigger_registrations
		WHERE workflow_id = $1
		ORDER BY id`,
		workflowID,
	)
}

// DeleteTriggerRegistrations removes all registrations of a workflow.
func (s *Store) DeleteTriggerRegistrations(ctx context.Context, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trigger_registrations WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete trigger registrations: %w", err)
	}

	return nil
}

// MatchGitHubTriggers lists enabled github registrations matching the event.
// The event-type filter lives in the JSON document (an empty list matches
// everything), so it is applied in Go after the indexed columns narrow the
// candidates.
func (s *Store) MatchGitHubTriggers(ctx context.Context, installationID int64, repository, eventType string) ([]*models.TriggerRegistration, error) {
	candidates, err := s.queryRegistrations(ctx, `
		SELECT data FROM trigger_registrations
		WHERE trigger_type = $1 AND enabled AND installation_id = $2 AND repository = $3
		ORDER BY id`,
		string(models.TriggerTypeGitHub), installationID, repository,
	)
	if err != nil {
		return nil, err
	}

	var matched []*models.TriggerRegistration

	for _, registration := range candidates {
		if registration.MatchesGitHub(installationID, repository, eventType) {
			matched = append(matched, registration)
		}
	}

	return matched, nil
}

// MatchEmailTriggers lists enabled email registrations accepting the address.
func (s *Store) MatchEmailTriggers(ctx context.Context, address string) ([]*models.TriggerRegistration, error) {
	return s.queryRegistrations(ctx, `
		SELECT data FROM trigger_registrations
		WHERE trigger_type = $1 AND enabled
		  AND (email_address IS NULL OR email_address = $2)
		ORDER BY id`,
		string(models.TriggerTypeEmail), address,
	)
}

// DueCronTriggers lists enabled cron registrations whose next fire time has
// arrived.
func (s *Store) DueCronTriggers(ctx context.Context, now time.Time) ([]*models.TriggerRegistration, error) {
	return s.queryRegistrations(ctx, `
		SELECT data FROM trigger_registrations
		WHERE trigger_type = $1 AND enabled AND next_due_at IS NOT NULL AND next_due_at <= $2
		ORDER BY next_due_at, id`,
		string(models.TriggerTypeCron), now,
	)
}

func (s *Store) queryRegistrations(ctx context.Context, query string, args ...any) ([]*models.TriggerRegistration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger registrations: %w", err)
	}
	defer rows.Close()

	var registrations []*models.TriggerRegistration

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan trigger registration: %w", err)
		}

		var registration models.TriggerRegistration
		if err := json.Unmarshal(data, &registration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger registration: %w", err)
		}

		registrations = append(registrations, &registration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger registrations: %w", err)
	}

	return registrations, nil
}

func nullInt64(value int64) sql.NullInt64 {
	return sql.NullInt64{Int64: value, Valid: value != 0}
}
