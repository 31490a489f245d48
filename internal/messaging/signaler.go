package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aidin1998/teammatch/internal/matchqueue"
	"github.com/Aidin1998/teammatch/pkg/models"
)

// BusSignaler publishes queue-changed signals so any instance in the consumer group can pair.
type BusSignaler struct {
	bus *MessageBus
}

// NewBusSignaler creates a matchqueue.Signaler backed by the bus
func NewBusSignaler(bus *MessageBus) *BusSignaler {
	return &BusSignaler{bus: bus}
}

func (s *BusSignaler) QueueChanged(ctx context.Context, key matchqueue.QueueKey) error {
	return s.bus.PublishQueueChanged(ctx, string(key.EventType), key.Region)
}

// QueueChangedHandler adapts a key-level callback to a bus MessageHandler
func QueueChangedHandler(fn func(ctx context.Context, key matchqueue.QueueKey) error) MessageHandler {
	return func(ctx context.Context, msg *ReceivedMessage) error {
		var event QueueChangedMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to decode queue-changed message: %w", err)
		}
		return fn(ctx, matchqueue.QueueKey{
			EventType: models.EventType(event.EventType),
			Region:    event.Region,
		})
	}
}
