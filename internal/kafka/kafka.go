// Package kafka narrows github.com/segmentio/kafka-go down to the two
// interfaces crawlkit depends on, so producers and consumers can be
// faked in tests without a broker.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter abstracts kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// MessageReader abstracts kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a production MessageWriter for broker/topic.
func NewWriter(broker, topic string) MessageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: false,
	}
}

// NewReader builds a production MessageReader for broker/topic/groupID.
func NewReader(broker, topic, groupID string) MessageReader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
	})
}

// SessionStart is the payload cmd/api publishes to hand a newly created
// crawl session off to cmd/worker.
type SessionStart struct {
	SessionID string   `json:"sessionId"`
	TableName string   `json:"tableName"`
	SeedURLs  []string `json:"seedUrls"`
}

// SessionProducer publishes SessionStart messages.
type SessionProducer interface {
	WriteSessionStart(ctx context.Context, s SessionStart) error
}

// Producer is a SessionProducer backed by a MessageWriter.
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a session-start producer for broker/topic.
func NewProducer(broker, topic string) *Producer {
	return &Producer{writer: NewWriter(broker, topic)}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteSessionStart publishes s, keyed by session ID so all messages
// for one session land on the same partition.
func (p *Producer) WriteSessionStart(ctx context.Context, s SessionStart) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(s.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return p.writer.WriteMessages(ctx, msg)
}
