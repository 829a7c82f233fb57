package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
)

// CreateExecution stores a new execution with version 1.
func (s *Store) CreateExecution(ctx context.Context, state *models.ExecutionState) error {
	state.Version = 1

	data, err := json.Marshal(state)
	if err != nil {
		return store.NewExecutionError("create", state.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, data, version, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		state.ID, state.WorkflowID, string(state.Status), data, state.Version, state.StartedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return store.NewExecutionError("create", state.ID, store.ErrExecutionExists)
		}

		return store.NewExecutionError("create", state.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return nil
}

// SaveExecution updates an execution, guarded by the version column. The new
// version is written atomically with the state; a mismatch means another
// writer got there first and the caller must reload.
func (s *Store) SaveExecution(ctx context.Context, state *models.ExecutionState) error {
	next := state.Version + 1

	// The stored document carries the post-save version so a reload sees a
	// token consistent with the column.
	saved := *state
	saved.Version = next

	data, err := json.Marshal(&saved)
	if err != nil {
		return store.NewExecutionError("save", state.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET workflow_id = $2, status = $3, data = $4, version = $5
		WHERE id = $1 AND version = $6`,
		state.ID, state.WorkflowID, string(state.Status), data, next, state.Version,
	)
	if err != nil {
		return store.NewExecutionError("save", state.ID, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewExecutionError("save", state.ID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		exists, err := s.executionExists(ctx, state.ID)
		if err != nil {
			return store.NewExecutionError("save", state.ID, err)
		}

		if !exists {
			return store.NewExecutionError("save", state.ID, store.ErrExecutionNotFound)
		}

		return store.NewExecutionError("save", state.ID, store.ErrVersionConflict)
	}

	state.Version = next

	return nil
}

func (s *Store) executionExists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check execution existence: %w", err)
	}

	return exists, nil
}

// ExecutionByID fetches a single execution state.
func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.ExecutionState, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, `SELECT data FROM executions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewExecutionError("get", id, store.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, store.NewExecutionError("get", id, fmt.Errorf("failed to query execution: %w", err))
	}

	var state models.ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, store.NewExecutionError("get", id, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &state, nil
}

// ExecutionsByWorkflow lists executions for a workflow, oldest first.
func (s *Store) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at, id`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var states []*models.ExecutionState

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var state models.ExecutionState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return states, nil
}
