package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MessageBus coordinates message publishing and consumption across service instances
type MessageBus struct {
	producer Producer
	consumer Consumer
	source   string
	logger   *zap.Logger
	handlers map[MessageType][]MessageHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewMessageBus creates a new message bus instance. source names this instance in outgoing messages.
func NewMessageBus(producer Producer, consumer Consumer, source string, logger *zap.Logger) *MessageBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &MessageBus{
		producer: producer,
		consumer: consumer,
		source:   source,
		logger:   logger,
		handlers: make(map[MessageType][]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// PublishQueueChanged announces that the queue for (eventType, region) grew.
// Keyed by queue so signals for one queue stay ordered on one partition.
func (mb *MessageBus) PublishQueueChanged(ctx context.Context, eventType, region string) error {
	event := &QueueChangedMessage{
		BaseMessage: NewBaseMessage(MsgQueueChanged, mb.source, ""),
		EventType:   eventType,
		Region:      region,
	}
	key := fmt.Sprintf("%s:%s", eventType, region)

	mb.logger.Debug("Publishing queue-changed signal", zap.String("queue", key))

	return mb.producer.Publish(ctx, GetTopic(MsgQueueChanged), key, event)
}

// PublishNotification relays a user-addressed push
func (mb *MessageBus) PublishNotification(ctx context.Context, userID, topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	event := &NotificationMessage{
		BaseMessage: NewBaseMessage(MsgUserNotification, mb.source, ""),
		UserID:      userID,
		Topic:       topic,
		Payload:     raw,
	}

	mb.logger.Debug("Publishing notification",
		zap.String("user_id", userID),
		zap.String("topic", topic))

	return mb.producer.Publish(ctx, GetTopic(MsgUserNotification), userID, event)
}

// RegisterHandler registers a message handler for a specific message type
func (mb *MessageBus) RegisterHandler(msgType MessageType, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.handlers[msgType] = append(mb.handlers[msgType], handler)

	mb.logger.Info("Registered message handler", zap.String("type", string(msgType)))
}

// StartConsumers starts consuming messages for all registered handlers. A new
// group reads each topic from the beginning.
func (mb *MessageBus) StartConsumers(groupID string) error {
	return mb.StartConsumersFrom(groupID, FromEarliest)
}

// StartConsumersFrom is StartConsumers with the offset a new group starts at
func (mb *MessageBus) StartConsumersFrom(groupID string, startOffset int64) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if len(mb.handlers) == 0 {
		mb.logger.Warn("No message handlers registered")
		return nil
	}

	topicSet := make(map[Topic]bool)
	for msgType := range mb.handlers {
		topicSet[GetTopic(msgType)] = true
	}
	topics := make([]Topic, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}

	mb.logger.Info("Starting message consumers",
		zap.String("group_id", groupID),
		zap.Int64("start_offset", startOffset),
		zap.Int("topic_count", len(topics)),
		zap.Int("handler_count", len(mb.handlers)))

	return mb.consumer.Subscribe(mb.ctx, topics, groupID, startOffset, mb.handleMessage)
}

// handleMessage processes incoming messages and routes them to registered handlers
func (mb *MessageBus) handleMessage(ctx context.Context, msg *ReceivedMessage) error {
	start := time.Now()

	var baseMsg BaseMessage
	if err := json.Unmarshal(msg.Value, &baseMsg); err != nil {
		mb.logger.Error("Failed to parse message",
			zap.Error(err),
			zap.String("topic", msg.Topic))
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	mb.mu.RLock()
	handlers, exists := mb.handlers[baseMsg.Type]
	mb.mu.RUnlock()

	if !exists {
		mb.logger.Debug("No handlers registered for message type",
			zap.String("type", string(baseMsg.Type)))
		return nil
	}

	var lastErr error
	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			lastErr = err
			mb.logger.Error("Message handler failed",
				zap.Error(err),
				zap.String("type", string(baseMsg.Type)),
				zap.String("topic", msg.Topic))
		}
	}

	mb.logger.Debug("Message processed",
		zap.String("type", string(baseMsg.Type)),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("success", lastErr == nil))

	return lastErr
}

// Stop gracefully stops the message bus
func (mb *MessageBus) Stop() error {
	mb.logger.Info("Stopping message bus")

	mb.cancel()

	var producerErr, consumerErr error
	if mb.producer != nil {
		producerErr = mb.producer.Close()
	}
	if mb.consumer != nil {
		consumerErr = mb.consumer.Close()
	}

	if producerErr != nil {
		return producerErr
	}
	return consumerErr
}

// HealthCheck reports whether the bus is still running
func (mb *MessageBus) HealthCheck() error {
	select {
	case <-mb.ctx.Done():
		return fmt.Errorf("message bus is stopped")
	default:
		return nil
	}
}
