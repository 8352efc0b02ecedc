package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	kafkago "github.com/segmentio/kafka-go"

	"crawlkit/internal/graph"
	"crawlkit/internal/mocks"
)

func newRecorderWithQueryCapture(t *testing.T) (*graph.Neo4jRecorder, *bool) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)
	called := false

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session).AnyTimes()
	session.EXPECT().Close(gomock.Any()).Return(nil).AnyTimes()
	session.EXPECT().ExecuteWrite(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
			called = true
			return nil, nil
		},
	).AnyTimes()

	return graph.NewNeo4jRecorderWithDriver(driver), &called
}

func resetGraphWriterMetrics() {
	atomic.StoreUint64(&graphWriterEdgesReceived, 0)
	atomic.StoreUint64(&graphWriterEdgesFailed, 0)
	atomic.StoreUint64(&graphWriterEdgesWritten, 0)
}

func TestWriteEdgeRecordsEdge(t *testing.T) {
	recorder, called := newRecorderWithQueryCapture(t)
	edge := graph.Edge{SessionID: "s1", From: "https://example.com/", To: "https://example.com/a"}
	payload, err := json.Marshal(edge)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	if err := writeEdge(context.Background(), recorder, payload); err != nil {
		t.Fatalf("write edge error: %v", err)
	}
	if !*called {
		t.Fatal("expected execute write call")
	}
}

func TestWriteEdgeSkipsIncompleteEdge(t *testing.T) {
	recorder, called := newRecorderWithQueryCapture(t)
	payload, err := json.Marshal(graph.Edge{SessionID: "s1", From: "https://example.com/"})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	if err := writeEdge(context.Background(), recorder, payload); err != nil {
		t.Fatalf("write edge error: %v", err)
	}
	if *called {
		t.Fatal("expected no write call for an edge missing To")
	}
}

func TestHandleMetricsMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec := httptest.NewRecorder()

	handleMetrics(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleMetricsOK(t *testing.T) {
	resetGraphWriterMetrics()
	atomic.StoreUint64(&graphWriterEdgesReceived, 3)
	atomic.StoreUint64(&graphWriterEdgesFailed, 1)
	atomic.StoreUint64(&graphWriterEdgesWritten, 2)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body := rec.Body.String()
	for _, line := range []string{
		"crawlkit_graph_writer_up 1",
		"crawlkit_graph_writer_edges_received_total 3",
		"crawlkit_graph_writer_edges_failed_total 1",
		"crawlkit_graph_writer_edges_written_total 2",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected metrics to contain %q, got %q", line, body)
		}
	}
}

func TestConsumeEdgesCommitsOnSuccess(t *testing.T) {
	resetGraphWriterMetrics()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	recorder, called := newRecorderWithQueryCapture(t)

	payload, err := json.Marshal(graph.Edge{
		SessionID: "s1",
		From:      "https://example.com/",
		To:        "https://example.com/a",
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(kafkago.Message{Value: payload}, nil),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, ...kafkago.Message) error {
				cancel()
				return nil
			},
		),
		reader.EXPECT().FetchMessage(gomock.Any()).Return(kafkago.Message{}, context.Canceled),
	)

	consumeEdges(ctx, reader, recorder)

	if !*called {
		t.Fatal("expected write to be called")
	}
	if got := atomic.LoadUint64(&graphWriterEdgesWritten); got != 1 {
		t.Fatalf("expected edges written to be 1, got %d", got)
	}
}

func TestConsumeEdgesSkipsCommitOnWriteFailure(t *testing.T) {
	resetGraphWriterMetrics()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(kafkago.Message{Value: []byte("not json")}, nil),
		reader.EXPECT().FetchMessage(gomock.Any()).DoAndReturn(
			func(context.Context) (kafkago.Message, error) {
				cancel()
				return kafkago.Message{}, context.Canceled
			},
		),
	)

	consumeEdges(ctx, reader, nil)

	if got := atomic.LoadUint64(&graphWriterEdgesFailed); got != 1 {
		t.Fatalf("expected edges failed to be 1, got %d", got)
	}
	if got := atomic.LoadUint64(&graphWriterEdgesWritten); got != 0 {
		t.Fatalf("expected edges written to stay 0, got %d", got)
	}
}
