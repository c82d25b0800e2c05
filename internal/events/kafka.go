package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultTopic is the topic shipment events are written to.
const DefaultTopic = "shipping.events"

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by order id, so all
// events of one order land on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *otelzap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *otelzap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(w, topic, logger)
}

// NewKafkaPublisherWithWriter creates a publisher around an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topic string, logger *otelzap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish encodes event and writes it synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, event ShipmentEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s event to %s: %w", event.Type, p.topic, err)
	}

	p.logger.Ctx(ctx).Debug("Published shipment event",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("topic", p.topic),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
