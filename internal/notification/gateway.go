// Package notification delivers per-user state-change pushes over the configured transports.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aidin1998/teammatch/internal/messaging"
	"github.com/Aidin1998/teammatch/internal/ws"
	"github.com/Aidin1998/teammatch/pkg/metrics"
	"go.uber.org/zap"
)

// TopicMatch is the destination for match state-change payloads
const TopicMatch = "/queue/match"

// Gateway is an addressable per-user push channel. Delivery is fire-and-forget.
type Gateway interface {
	SendToUser(ctx context.Context, userID, topic string, payload interface{}) error
}

// HubGateway pushes to sockets connected to this instance
type HubGateway struct {
	hub *ws.Hub
}

func NewHubGateway(hub *ws.Hub) *HubGateway {
	return &HubGateway{hub: hub}
}

func (g *HubGateway) SendToUser(_ context.Context, userID, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return g.hub.SendToUser(userID, topic, data)
}

// BusGateway publishes pushes to the notification topic for other instances
// (or external push services) to deliver.
type BusGateway struct {
	bus *messaging.MessageBus
}

func NewBusGateway(bus *messaging.MessageBus) *BusGateway {
	return &BusGateway{bus: bus}
}

func (g *BusGateway) SendToUser(ctx context.Context, userID, topic string, payload interface{}) error {
	return g.bus.PublishNotification(ctx, userID, topic, payload)
}

// Fanout sends every push through each named transport. A transport failure is
// logged and counted; the first error is returned after all transports were tried.
type Fanout struct {
	transports []namedGateway
	logger     *zap.Logger
}

type namedGateway struct {
	name string
	gw   Gateway
}

func NewFanout(logger *zap.Logger) *Fanout {
	return &Fanout{logger: logger}
}

// Add registers a transport under name, used as the metrics label
func (f *Fanout) Add(name string, gw Gateway) *Fanout {
	f.transports = append(f.transports, namedGateway{name: name, gw: gw})
	return f
}

func (f *Fanout) SendToUser(ctx context.Context, userID, topic string, payload interface{}) error {
	var firstErr error
	for _, t := range f.transports {
		if err := t.gw.SendToUser(ctx, userID, topic, payload); err != nil {
			metrics.Notifications.WithLabelValues(t.name, "error").Inc()
			f.logger.Warn("Notification delivery failed",
				zap.String("transport", t.name),
				zap.String("user_id", userID),
				zap.String("topic", topic),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.Notifications.WithLabelValues(t.name, "ok").Inc()
	}
	return firstErr
}

// Relay returns a bus handler that hands notifications published by any instance
// to the local hub, so a user connected here receives pushes raised elsewhere.
func Relay(hub *ws.Hub) messaging.MessageHandler {
	return func(_ context.Context, msg *messaging.ReceivedMessage) error {
		var event messaging.NotificationMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to decode notification message: %w", err)
		}
		return hub.SendToUser(event.UserID, event.Topic, event.Payload)
	}
}

// RelayGroup is the consumer group an instance relays notifications under.
// Each instance needs every notification, so groups are never shared.
func RelayGroup(instanceID string) string {
	return "notify-" + instanceID
}

// StartRelay subscribes hub to notifications published on bus. The relay group
// is new on every start and begins at the newest offset, so a restart does not
// push historical notifications again.
func StartRelay(bus *messaging.MessageBus, hub *ws.Hub, instanceID string) error {
	bus.RegisterHandler(messaging.MsgUserNotification, Relay(hub))
	return bus.StartConsumersFrom(RelayGroup(instanceID), messaging.FromLatest)
}
