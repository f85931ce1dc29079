package testsupport

import (
	"context"
	"sync"

	"cleanops_backend/platform/events"
)

// CaptureBus is an event bus that records published events synchronously so
// tests can assert on them without races.
type CaptureBus struct {
	mu        sync.Mutex
	published []events.Event
}

// NewCaptureBus creates an empty capture bus.
func NewCaptureBus() *CaptureBus {
	return &CaptureBus{}
}

var _ events.Bus = (*CaptureBus)(nil)

func (b *CaptureBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *CaptureBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *CaptureBus) Subscribe(string, events.Handler) {}

// Published returns all captured events in publish order.
func (b *CaptureBus) Published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.published))
	copy(out, b.published)
	return out
}

// Names returns the event names of all captured events in publish order.
func (b *CaptureBus) Names() []string {
	var names []string
	for _, event := range b.Published() {
		names = append(names, event.EventName())
	}
	return names
}
