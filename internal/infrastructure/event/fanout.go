package event

import (
	"context"

	"github.com/syncline/backend/internal/domain/shared"
)

// FanoutPublisher forwards events to every underlying publisher. Used to
// feed both the in-process bus and Redis from one Publish call.
type FanoutPublisher struct {
	publishers []shared.EventPublisher
}

// NewFanoutPublisher creates a publisher fanning out to the given targets
func NewFanoutPublisher(publishers ...shared.EventPublisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

// Publish implements EventPublisher. The first error is returned after all
// publishers have been attempted.
func (p *FanoutPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var firstErr error
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, events...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ensure FanoutPublisher implements EventPublisher
var _ shared.EventPublisher = (*FanoutPublisher)(nil)
