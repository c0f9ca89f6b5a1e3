package shared

import "context"

// EventPublisher publishes domain events. The write sync worker and the
// batch services depend on this interface rather than on any particular
// transport, so status events can go to an in-process bus, Redis, or both.
type EventPublisher interface {
	// Publish publishes one or more domain events
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in.
	// An empty slice means the handler receives all events.
	EventTypes() []string
}

// EventBus combines publishing with handler subscription
type EventBus interface {
	EventPublisher
	// Subscribe registers a handler for specific event types.
	// If no event types are provided, the handler receives all events.
	Subscribe(handler EventHandler, eventTypes ...string)
	// Unsubscribe removes a handler from the subscription list
	Unsubscribe(handler EventHandler)
}

// NopPublisher discards all events. Used in tests and in runs where no
// transport is wired.
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(ctx context.Context, events ...DomainEvent) error {
	return nil
}
