// Package store defines the execution state store: persistence for execution
// records, suspension records, and trigger registrations. The in-memory
// implementation backs tests; the postgres implementation backs production.
// Both satisfy the same contract.
package store

import (
	"context"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
)

// Store is the swappable persistence boundary of the engine and the trigger
// manager. Implementations must serialize mutations per execution id: saving
// an ExecutionState whose Version does not match the stored one fails with
// ErrVersionConflict, so a timer resume and a human-input resume racing on
// the same execution cannot corrupt state.
type Store interface {
	ExecutionStore
	SuspensionStore
	TriggerRegistrationStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionStore persists per-run execution state.
type ExecutionStore interface {
	// CreateExecution stores a new execution. The stored Version starts at 1.
	CreateExecution(ctx context.Context, state *models.ExecutionState) error

	// SaveExecution updates an execution; fails with ErrVersionConflict when
	// state.Version does not match the stored version. On success the stored
	// and in-memory Version are incremented.
	SaveExecution(ctx context.Context, state *models.ExecutionState) error

	ExecutionByID(ctx context.Context, id string) (*models.ExecutionState, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error)
}

// SuspensionStore persists the suspension half of the engine's continuation.
type SuspensionStore interface {
	SaveSuspension(ctx context.Context, record *models.SuspensionRecord) error

	// Suspension returns the record for (executionID, nodeID) with the given
	// kind; ErrSuspensionNotFound when absent or of a different kind.
	Suspension(ctx context.Context, executionID, nodeID string, kind models.SuspensionKind) (*models.SuspensionRecord, error)

	SuspensionByCorrelation(ctx context.Context, correlationKey string) (*models.SuspensionRecord, error)
	DeleteSuspension(ctx context.Context, executionID, nodeID string) error

	// DueSuspensions lists timer suspensions whose due time is not after the
	// given instant. Used by the periodic sweep.
	DueSuspensions(ctx context.Context, before time.Time) ([]*models.SuspensionRecord, error)
}

// TriggerRegistrationStore persists trigger registrations and the scan
// queries the dispatch layer needs.
type TriggerRegistrationStore interface {
	SaveTriggerRegistration(ctx context.Context, registration *models.TriggerRegistration) error
	TriggerRegistrations(ctx context.Context, workflowID string) ([]*models.TriggerRegistration, error)
	DeleteTriggerRegistrations(ctx context.Context, workflowID string) error

	// MatchGitHubTriggers lists enabled github registrations across all
	// workflows matching (installation id, repository, event type).
	MatchGitHubTriggers(ctx context.Context, installationID int64, repository, eventType string) ([]*models.TriggerRegistration, error)

	// MatchEmailTriggers lists enabled email registrations whose address
	// filter is empty or equals the recipient address.
	MatchEmailTriggers(ctx context.Context, address string) ([]*models.TriggerRegistration, error)

	// DueCronTriggers lists enabled cron registrations due at the given time.
	DueCronTriggers(ctx context.Context, now time.Time) ([]*models.TriggerRegistration, error)
}
