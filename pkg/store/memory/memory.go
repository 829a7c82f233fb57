// Package memory provides the in-memory reference implementation of the
// execution state store. It satisfies the same contract as the durable
// implementations and backs deterministic unit tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/store"
)

// Store keeps all records in process memory. Mutations on the same execution
// id are serialized through optimistic versioning, mirroring the durable
// implementations.
type Store struct {
	mu            sync.RWMutex
	executions    map[string]json.RawMessage
	versions      map[string]int64
	suspensions   map[string]*models.SuspensionRecord // keyed executionID + "\x00" + nodeID
	registrations map[string]*models.TriggerRegistration
}

func NewStore() *Store {
	return &Store{
		executions:    make(map[string]json.RawMessage),
		versions:      make(map[string]int64),
		suspensions:   make(map[string]*models.SuspensionRecord),
		registrations: make(map[string]*models.TriggerRegistration),
	}
}

func suspensionKey(executionID, nodeID string) string {
	return executionID + "\x00" + nodeID
}

func encodeExecution(state *models.ExecutionState) (json.RawMessage, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution %s: %w", state.ID, err)
	}

	return raw, nil
}

func decodeExecution(raw json.RawMessage) (*models.ExecutionState, error) {
	var state models.ExecutionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode execution: %w", err)
	}

	return &state, nil
}

func (s *Store) CreateExecution(_ context.Context, state *models.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[state.ID]; exists {
		return store.NewExecutionError("CreateExecution", state.ID, store.ErrExecutionExists)
	}

	state.Version = 1

	raw, err := encodeExecution(state)
	if err != nil {
		return err
	}

	s.executions[state.ID] = raw
	s.versions[state.ID] = 1

	return nil
}

func (s *Store) SaveExecution(_ context.Context, state *models.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.versions[state.ID]
	if !exists {
		return store.NewExecutionError("SaveExecution", state.ID, store.ErrExecutionNotFound)
	}

	if current != state.Version {
		return store.NewExecutionError("SaveExecution", state.ID, store.ErrVersionConflict)
	}

	state.Version++

	raw, err := encodeExecution(state)
	if err != nil {
		state.Version--

		return err
	}

	s.executions[state.ID] = raw
	s.versions[state.ID] = state.Version

	return nil
}

func (s *Store) ExecutionByID(_ context.Context, id string) (*models.ExecutionState, error) {
	s.mu.RLock()
	raw, exists := s.executions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, store.NewExecutionError("ExecutionByID", id, store.ErrExecutionNotFound)
	}

	return decodeExecution(raw)
}

func (s *Store) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var states []*models.ExecutionState

	for _, raw := range s.executions {
		state, err := decodeExecution(raw)
		if err != nil {
			return nil, err
		}

		if state.WorkflowID == workflowID {
			states = append(states, state)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.Before(states[j].StartedAt)
	})

	return states, nil
}

func (s *Store) SaveSuspension(_ context.Context, record *models.SuspensionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.suspensions[suspensionKey(record.ExecutionID, record.NodeID)] = &copied

	return nil
}

func (s *Store) Suspension(_ context.Context, executionID, nodeID string, kind models.SuspensionKind) (*models.SuspensionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.suspensions[suspensionKey(executionID, nodeID)]
	if !exists || record.Kind != kind {
		return nil, store.NewSuspensionError("Suspension", executionID, nodeID, store.ErrSuspensionNotFound)
	}

	copied := *record

	return &copied, nil
}

func (s *Store) SuspensionByCorrelation(_ context.Context, correlationKey string) (*models.SuspensionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.suspensions {
		if record.CorrelationKey != "" && record.CorrelationKey == correlationKey {
			copied := *record

			return &copied, nil
		}
	}

	return nil, fmt.Errorf("correlation key %s: %w", correlationKey, store.ErrSuspensionNotFound)
}

func (s *Store) DeleteSuspension(_ context.Context, executionID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := suspensionKey(executionID, nodeID)
	if _, exists := s.suspensions[key]; !exists {
		return store.NewSuspensionError("DeleteSuspension", executionID, nodeID, store.ErrSuspensionNotFound)
	}

	delete(s.suspensions, key)

	return nil
}

func (s *Store) DueSuspensions(_ context.Context, before time.Time) ([]*models.SuspensionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.SuspensionRecord

	for _, record := range s.suspensions {
		if record.Due(before) {
			copied := *record
			due = append(due, &copied)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt.Before(*due[j].DueAt)
	})

	return due, nil
}

func (s *Store) SaveTriggerRegistration(_ context.Context, registration *models.TriggerRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *registration
	s.registrations[registration.ID] = &copied

	return nil
}

func (s *Store) TriggerRegistrations(_ context.Context, workflowID string) ([]*models.TriggerRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var registrations []*models.TriggerRegistration

	for _, registration := range s.registrations {
		if registration.WorkflowID == workflowID {
			copied := *registration
			registrations = append(registrations, &copied)
		}
	}

	sort.Slice(registrations, func(i, j int) bool {
		return registrations[i].ID < registrations[j].ID
	})

	return registrations, nil
}

func (s *Store) DeleteTriggerRegistrations(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, registration := range s.registrations {
		if registration.WorkflowID == workflowID {
			delete(s.registrations, id)
		}
	}

	return nil
}

func (s *Store) MatchGitHubTriggers(_ context.Context, installationID int64, repository, eventType string) ([]*models.TriggerRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.TriggerRegistration

	for _, registration := range s.registrations {
		if registration.MatchesGitHub(installationID, repository, eventType) {
			copied := *registration
			matches = append(matches, &copied)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

func (s *Store) MatchEmailTriggers(_ context.Context, address string) ([]*models.TriggerRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.TriggerRegistration

	for _, registration := range s.registrations {
		if !registration.Enabled || registration.Type != models.TriggerTypeEmail {
			continue
		}

		if registration.EmailAddress == "" || registration.EmailAddress == address {
			copied := *registration
			matches = append(matches, &copied)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

func (s *Store) DueCronTriggers(_ context.Context, now time.Time) ([]*models.TriggerRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.TriggerRegistration

	for _, registration := range s.registrations {
		if registration.CronDue(now) {
			copied := *registration
			due = append(due, &copied)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ID < due[j].ID
	})

	return due, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
