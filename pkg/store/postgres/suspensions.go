package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
)

// SaveSuspension upserts the suspension record for (execution, node).
func (s *Store) SaveSuspension(ctx context.Context, record *models.SuspensionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suspensions (execution_id, node_id, kind, due_at, correlation_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (execution_id, node_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			due_at = EXCLUDED.due_at,
			correlation_key = EXCLUDED.correlation_key,
			created_at = EXCLUDED.created_at`,
		record.ExecutionID, record.NodeID, string(record.Kind),
		record.DueAt, nullString(record.CorrelationKey), record.CreatedAt,
	)
	if err != nil {
		return store.NewSuspensionError("save", record.ExecutionID, record.NodeID,
			fmt.Errorf("failed to upsert suspension: %w", err))
	}

	return nil
}

// Suspension fetches the record for (executionID, nodeID) with the given kind.
func (s *Store) Suspension(ctx context.Context, executionID, nodeID string, kind models.SuspensionKind) (*models.SuspensionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, node_id, kind, due_at, correlation_key, created_at
		FROM suspensions
		WHERE execution_id = $1 AND node_id = $2 AND kind = $3`,
		executionID, nodeID, string(kind),
	)

	record, err := scanSuspension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewSuspensionError("get", executionID, nodeID, store.ErrSuspensionNotFound)
	}

	if err != nil {
		return nil, store.NewSuspensionError("get", executionID, nodeID, err)
	}

	return record, nil
}

// SuspensionByCorrelation resolves a suspension by its correlation key.
func (s *Store) SuspensionByCorrelation(ctx context.Context, correlationKey string) (*models.SuspensionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, node_id, kind, due_at, correlation_key, created_at
		FROM suspensions
		WHERE correlation_key = $1`,
		correlationKey,
	)

	record, err := scanSuspension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSuspensionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query suspension by correlation: %w", err)
	}

	return record, nil
}

// DeleteSuspension removes the record for (executionID, nodeID). Deleting a
// missing record is not an error: sweeps and callbacks may race.
func (s *Store) DeleteSuspension(ctx context.Context, executionID, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM suspensions WHERE execution_id = $1 AND node_id = $2`,
		executionID, nodeID,
	)
	if err != nil {
		return store.NewSuspensionError("delete", executionID, nodeID,
			fmt.Errorf("failed to delete suspension: %w", err))
	}

	return nil
}

// DueSuspensions lists timer suspensions due at or before the given instant.
func (s *Store) DueSuspensions(ctx context.Context, before time.Time) ([]*models.SuspensionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, node_id, kind, due_at, correlation_key, created_at
		FROM suspensions
		WHERE kind = $1 AND due_at IS NOT NULL AND due_at <= $2
		ORDER BY due_at, execution_id, node_id`,
		string(models.SuspensionKindTimer), before,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due suspensions: %w", err)
	}
	defer rows.Close()

	var records []*models.SuspensionRecord

	for rows.Next() {
		record, err := scanSuspension(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suspensions: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuspension(row rowScanner) (*models.SuspensionRecord, error) {
	var (
		record      models.SuspensionRecord
		kind        string
		dueAt       sql.NullTime
		correlation sql.NullString
	)

	err := row.Scan(&record.ExecutionID, &record.NodeID, &kind, &dueAt, &correlation, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan suspension: %w", err)
	}

	record.Kind = models.SuspensionKind(kind)

	if dueAt.Valid {
		due := dueAt.Time
		record.DueAt = &due
	}

	if correlation.Valid {
		record.CorrelationKey = correlation.String
	}

	return &record, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
