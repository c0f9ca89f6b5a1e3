package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, uuid.New(), uuid.New(), "test"),
	}
}

type recordingHandler struct {
	types    []string
	received []shared.DomainEvent
	err      error
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.received = append(h.received, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func TestInMemoryEventBus_PublishToSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"record.updated"}}
	bus.Subscribe(handler)

	event := newTestEvent("record.updated")
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, handler.received, 1)
	assert.Equal(t, event.EventID(), handler.received[0].EventID())
}

func TestInMemoryEventBus_TypeFiltering(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"record.updated"}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("record.deleted")))
	assert.Empty(t, handler.received)
}

func TestInMemoryEventBus_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("record.updated"),
		newTestEvent("record.deleted"),
	))
	assert.Len(t, handler.received, 2)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recordingHandler{types: []string{"record.updated"}, err: errors.New("boom")}
	healthy := &recordingHandler{types: []string{"record.updated"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("record.updated")))
	assert.Len(t, healthy.received, 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"record.updated"}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("record.updated")))
	assert.Empty(t, handler.received)
}

func TestFanoutPublisher(t *testing.T) {
	first := NewInMemoryEventBus(zap.NewNop())
	second := NewInMemoryEventBus(zap.NewNop())
	firstHandler := &recordingHandler{}
	secondHandler := &recordingHandler{}
	first.Subscribe(firstHandler)
	second.Subscribe(secondHandler)

	fanout := NewFanoutPublisher(first, second)
	require.NoError(t, fanout.Publish(context.Background(), newTestEvent("item.completed")))

	assert.Len(t, firstHandler.received, 1)
	assert.Len(t, secondHandler.received, 1)
}
