// Package events provides the in-process event bus the coordination services
// publish their lifecycle events on. Subscribers (the metrics collector, for
// one) observe state changes without the services knowing about them; all
// durable state rides the database, never the bus.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by all events. Embed it and add the
// event's own fields alongside.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish sends an event to all handlers registered for its name.
	// Handlers run asynchronously; publishers never block on subscribers.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for every handler to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the event name as returned by
	// Event.EventName().
	Subscribe(eventName string, handler Handler)
}
