package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	// MsgQueueChanged announces that an auto-match queue received a request
	MsgQueueChanged MessageType = "queue.changed"
	// MsgUserNotification carries a push addressed to one user
	MsgUserNotification MessageType = "notification.user"
)

// SchemaVersion is stamped on every outgoing message
const SchemaVersion = "1.0"

// BaseMessage contains common fields for all messages
type BaseMessage struct {
	MessageID     string      `json:"message_id"`
	Type          MessageType `json:"type"`
	Timestamp     time.Time   `json:"timestamp"`
	Version       string      `json:"version"`
	Source        string      `json:"source"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// QueueChangedMessage identifies the queue that may now hold a pair
type QueueChangedMessage struct {
	BaseMessage
	EventType string `json:"event_type"`
	Region    string `json:"region"`
}

// NotificationMessage is a user-addressed push relayed through the bus
type NotificationMessage struct {
	BaseMessage
	UserID  string          `json:"user_id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Topic defines Kafka topics for different message types
type Topic string

const (
	TopicQueueSignals  Topic = "teammatch-queue-signals"
	TopicNotifications Topic = "teammatch-notifications"
)

// GetTopic returns the appropriate topic for a message type
func GetTopic(msgType MessageType) Topic {
	switch msgType {
	case MsgQueueChanged:
		return TopicQueueSignals
	default:
		return TopicNotifications
	}
}

// NewBaseMessage creates a base message with common fields
func NewBaseMessage(msgType MessageType, source string, correlationID string) BaseMessage {
	return BaseMessage{
		MessageID:     uuid.New().String(),
		Type:          msgType,
		Timestamp:     time.Now().UTC(),
		Version:       SchemaVersion,
		Source:        source,
		CorrelationID: correlationID,
	}
}
