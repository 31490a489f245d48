package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for Kafka connection
type KafkaConfig struct {
	Brokers             []string      `json:"brokers"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	BatchSize           int           `json:"batch_size"`
	BatchTimeout        time.Duration `json:"batch_timeout"`
	RequiredAcks        int           `json:"required_acks"`
	Compression         string        `json:"compression"`
	RetryMax            int           `json:"retry_max"`
	ConsumerGroupPrefix string        `json:"consumer_group_prefix"`
	MaxMessageBytes     int           `json:"max_message_bytes"`
}

// DefaultKafkaConfig returns defaults tuned for small, latency-sensitive signals
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:             []string{"localhost:9092"},
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        2 * time.Second,
		BatchSize:           100,
		BatchTimeout:        5 * time.Millisecond,
		RequiredAcks:        1,
		Compression:         "snappy",
		RetryMax:            3,
		ConsumerGroupPrefix: "teammatch",
		MaxMessageBytes:     1048576,
	}
}

// Producer interface defines message publishing operations
type Producer interface {
	Publish(ctx context.Context, topic Topic, key string, message interface{}) error
	Close() error
}

// Where a consumer group with no committed offset starts reading
const (
	FromEarliest = kafka.FirstOffset
	FromLatest   = kafka.LastOffset
)

// Consumer interface defines message consumption operations
type Consumer interface {
	Subscribe(ctx context.Context, topics []Topic, groupID string, startOffset int64, handler MessageHandler) error
	Close() error
}

// MessageHandler defines the callback function for processing messages
type MessageHandler func(ctx context.Context, msg *ReceivedMessage) error

// ReceivedMessage represents a received message with metadata
type ReceivedMessage struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string][]byte
	Offset    int64
	Partition int
	Timestamp time.Time
}

// KafkaProducer implements Producer interface
type KafkaProducer struct {
	config  *KafkaConfig
	writers map[Topic]*kafka.Writer
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewKafkaProducer creates a new Kafka producer
func NewKafkaProducer(config *KafkaConfig, logger *zap.Logger) *KafkaProducer {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	return &KafkaProducer{
		config:  config,
		writers: make(map[Topic]*kafka.Writer),
		logger:  logger,
	}
}

// getWriter returns or creates a writer for the specified topic
func (p *KafkaProducer) getWriter(topic Topic) *kafka.Writer {
	p.mu.RLock()
	writer, exists := p.writers[topic]
	p.mu.RUnlock()

	if exists {
		return writer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check pattern
	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer = &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        string(topic),
		Balancer:     &kafka.CRC32Balancer{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		ReadTimeout:  p.config.ReadTimeout,
		WriteTimeout: p.config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:  p.config.RetryMax,
		BatchBytes:   int64(p.config.MaxMessageBytes),
	}

	switch p.config.Compression {
	case "gzip":
		writer.Compression = kafka.Gzip
	case "lz4":
		writer.Compression = kafka.Lz4
	case "zstd":
		writer.Compression = kafka.Zstd
	default:
		writer.Compression = kafka.Snappy
	}

	p.writers[topic] = writer
	return writer
}

// Publish publishes a single message to the specified topic. Messages with the
// same key land on the same partition and keep their relative order.
func (p *KafkaProducer) Publish(ctx context.Context, topic Topic, key string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.getWriter(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

// Close closes the producer and all its writers
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			p.logger.Error("Failed to close writer", zap.Error(err))
		}
	}
	return lastErr
}

// KafkaConsumer implements Consumer interface
type KafkaConsumer struct {
	config  *KafkaConfig
	readers []*kafka.Reader
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(config *KafkaConfig, logger *zap.Logger) *KafkaConsumer {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	return &KafkaConsumer{config: config, logger: logger}
}

// Subscribe starts one reader per topic in the given consumer group. startOffset
// only applies while the group has no committed offset for a partition.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topics []Topic, groupID string, startOffset int64, handler MessageHandler) error {
	for _, topic := range topics {
		reader := kafka.NewReader(c.readerConfig(topic, groupID, startOffset))

		c.mu.Lock()
		c.readers = append(c.readers, reader)
		c.mu.Unlock()

		c.wg.Add(1)
		go c.consume(ctx, reader, handler)
	}
	return nil
}

func (c *KafkaConsumer) readerConfig(topic Topic, groupID string, startOffset int64) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     c.config.Brokers,
		Topic:       string(topic),
		GroupID:     fmt.Sprintf("%s-%s", c.config.ConsumerGroupPrefix, groupID),
		MaxBytes:    c.config.MaxMessageBytes,
		StartOffset: startOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			c.logger.Error(fmt.Sprintf(msg, args...))
		}),
	}
}

func (c *KafkaConsumer) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	defer c.wg.Done()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		receivedMsg := &ReceivedMessage{
			Topic:     msg.Topic,
			Key:       string(msg.Key),
			Value:     msg.Value,
			Headers:   make(map[string][]byte, len(msg.Headers)),
			Offset:    msg.Offset,
			Partition: msg.Partition,
			Timestamp: msg.Time,
		}
		for _, header := range msg.Headers {
			receivedMsg.Headers[header.Key] = header.Value
		}

		if err := handler(ctx, receivedMsg); err != nil {
			c.logger.Error("Message handler failed",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset))
		}
	}
}

// Close closes all consumer readers and waits for their loops to exit
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	readers := c.readers
	c.readers = nil
	c.mu.Unlock()

	var lastErr error
	for _, reader := range readers {
		if err := reader.Close(); err != nil {
			lastErr = err
			c.logger.Error("Failed to close reader", zap.Error(err))
		}
	}
	c.wg.Wait()
	return lastErr
}
