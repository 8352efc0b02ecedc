package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	kgo "github.com/segmentio/kafka-go"

	rkafka "crawlkit/internal/kafka"
	"crawlkit/internal/mocks"
)

func TestProducerWriteSessionStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewProducerWithWriter(writer)

	start := rkafka.SessionStart{
		SessionID: "session-123",
		TableName: "url_session_123",
		SeedURLs:  []string{"https://example.com/"},
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != start.SessionID {
				t.Fatalf("unexpected key: %s", string(msgs[0].Key))
			}
			var got rkafka.SessionStart
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.SessionID != start.SessionID || got.TableName != start.TableName {
				t.Fatalf("unexpected payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteSessionStart(context.Background(), start); err != nil {
		t.Fatalf("WriteSessionStart: %v", err)
	}
}

func TestProducerWriteSessionStartError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewProducerWithWriter(writer)

	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("write failed"))
	if err := prod.WriteSessionStart(context.Background(), rkafka.SessionStart{SessionID: "s"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
