package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"crawlkit/internal/kafka"
)

// KafkaPublisher is a Publisher that forwards every Event to a Kafka
// topic as JSON, keyed by URL so a consumer partitioning on key sees
// one URL's events in order.
type KafkaPublisher struct {
	writer kafka.MessageWriter
}

// NewKafkaPublisher builds a KafkaPublisher against broker/topic.
func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: kafka.NewWriter(broker, topic)}
}

// NewKafkaPublisherWithWriter builds a KafkaPublisher using a custom
// writer (tests).
func NewKafkaPublisherWithWriter(writer kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Publish marshals e and writes it to the configured topic. Errors are
// swallowed after being attempted once; Publish must not block or fail
// a tick chain just because the event-forwarding path is unhealthy.
func (p *KafkaPublisher) Publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := kafkago.Message{
		Key:   []byte(e.URL),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	_ = p.writer.WriteMessages(context.Background(), msg)
}
