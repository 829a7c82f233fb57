// Package postgres provides the durable execution state store backed by
// PostgreSQL. Execution state is stored as a JSON document with the columns
// the engine and trigger manager query on lifted out, and writes are
// serialized per execution id through a version column.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/flowgrid/flowgrid/pkg/store"
	"github.com/flowgrid/flowgrid/pkg/store/sqlbase"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, runs migrations, and returns the store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	s := &Store{db: db, logger: logger.With("module", "postgres_store")}

	migrator := sqlbase.NewMigrationManager(s.logger, db, migrations())
	if err := migrator.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				status TEXT NOT NULL,
				data JSONB NOT NULL,
				version BIGINT NOT NULL DEFAULT 1,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id);

			CREATE TABLE IF NOT EXISTS suspensions (
				execution_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				correlation_key TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (execution_id, node_id)
			);
			CREATE INDEX IF NOT EXISTS idx_suspensions_due ON suspensions (kind, due_at);
			CREATE INDEX IF NOT EXISTS idx_suspensions_correlation ON suspensions (correlation_key);

			CREATE TABLE IF NOT EXISTS trigger_registrations (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				next_due_at TIMESTAMP WITH TIME ZONE,
				installation_id BIGINT,
				repository TEXT,
				webhook_path TEXT,
				email_address TEXT,
				data JSONB NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_registrations_workflow ON trigger_registrations (workflow_id);
			CREATE INDEX IF NOT EXISTS idx_registrations_github ON trigger_registrations (installation_id, repository);
			CREATE INDEX IF NOT EXISTS idx_registrations_due ON trigger_registrations (trigger_type, enabled, next_due_at);
		`,
	}
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return nil
}

// Close closes the connection pool.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}
