package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/shared"
)

// channelPrefix namespaces the pub/sub channels used for sync status events
const channelPrefix = "sync:events"

// RedisPublisher publishes domain events over Redis pub/sub, keyed by
// entity id so clients can subscribe to the status stream of one record.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a Redis-backed event publisher
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// eventEnvelope is the wire format of a published event
type eventEnvelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	AggregateID   string `json:"aggregate_id"`
	AggregateType string `json:"aggregate_type"`
	OrgID         string `json:"org_id"`
}

// Publish publishes events to both the entity channel and the org-wide
// channel. Publish failures are logged, not returned: status events are
// best-effort and must never fail the operation that emitted them.
func (p *RedisPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		payload, err := json.Marshal(eventEnvelope{
			EventID:       event.EventID().String(),
			EventType:     event.EventType(),
			OccurredAt:    event.OccurredAt().UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
			AggregateID:   event.AggregateID().String(),
			AggregateType: event.AggregateType(),
			OrgID:         event.OrgID().String(),
		})
		if err != nil {
			p.logger.Error("failed to marshal event", zap.Error(err))
			continue
		}

		channels := []string{
			fmt.Sprintf("%s:%s", channelPrefix, event.AggregateID()),
			fmt.Sprintf("%s:org:%s", channelPrefix, event.OrgID()),
		}
		for _, channel := range channels {
			if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
				p.logger.Warn("failed to publish event",
					zap.String("channel", channel),
					zap.String("event_type", event.EventType()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Ensure RedisPublisher implements EventPublisher
var _ shared.EventPublisher = (*RedisPublisher)(nil)
