// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/flowgrid/flowgrid/pkg/channels/gochannel"
	"github.com/flowgrid/flowgrid/pkg/channels/kafka"
	"github.com/flowgrid/flowgrid/pkg/eventbus"
	"github.com/flowgrid/flowgrid/pkg/kv"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runners/action"
	"github.com/flowgrid/flowgrid/pkg/runners/flow"
	"github.com/flowgrid/flowgrid/pkg/runners/human"
	"github.com/flowgrid/flowgrid/pkg/runners/memory"
	"github.com/flowgrid/flowgrid/pkg/runners/trigger"
	"github.com/flowgrid/flowgrid/pkg/store"
	storememory "github.com/flowgrid/flowgrid/pkg/store/memory"
	"github.com/flowgrid/flowgrid/pkg/store/postgres"
)

// NewStore selects the execution store from the database URL. An empty URL
// gets the in-memory store; anything else must be a postgres DSN.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	if databaseURL == "" {
		return storememory.NewStore(), nil
	}

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgres.NewStore(ctx, logger, databaseURL)
	}

	return nil, fmt.Errorf("unsupported database url: %s", databaseURL)
}

// NewKV selects the key-value store backing the memory nodes. An empty URL
// gets the in-process store.
func NewKV(ctx context.Context, redisURL string) (kv.Store, error) {
	if redisURL == "" {
		return kv.NewMemoryStore(), nil
	}

	return kv.NewRedisStore(ctx, redisURL)
}

// NewEventBus creates the lifecycle event bus for the given provider.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "flowgrid")
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// NewRegistry builds a registry with every built-in runner registered.
func NewRegistry(logger *slog.Logger, kvStore kv.Store) *registry.Registry {
	reg := registry.NewRegistry(logger)

	trigger.Register(reg)
	flow.Register(reg)
	human.Register(reg)
	action.Register(reg)
	memory.Register(reg, kvStore)

	return reg
}
