// Package kv provides the key-value backend used by memory nodes. Values are
// JSON-serializable; implementations must round-trip them unchanged.
package kv

import "context"

// Store is the contract shared by the in-memory and redis backends.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error

	Close() error
}
