package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is the in-process Store implementation. Values are copied
// through JSON so callers cannot alias stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode value for key %s: %w", key, err)
	}

	return value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}

	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
