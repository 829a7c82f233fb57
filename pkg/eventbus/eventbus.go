// Package eventbus carries lifecycle events between the engine, the trigger
// manager, and any external consumers. The watermill implementation works
// over any channel (in-process gochannel or kafka).
package eventbus

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
