package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"crawlkit/common"
	"crawlkit/internal/graph"
	"crawlkit/internal/kafka"
)

var (
	// Counters for graph-writer throughput and failures exposed on /metrics.
	// received: edge messages fetched from Kafka; failed: payloads that could not be decoded or written to Neo4j.
	graphWriterEdgesReceived uint64
	graphWriterEdgesFailed   uint64
	graphWriterEdgesWritten  uint64
)

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	edgesTopic := common.GetEnv("KAFKA_EDGES_TOPIC", "crawlkit.graph.edges")
	edgesGroup := common.GetEnv("KAFKA_EDGES_GROUP", "crawlkit-graph-edges")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	recorder, err := graph.NewNeo4jRecorder(neo4jURI, neo4jUser, neo4jPassword)
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := recorder.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	edgesReader := kafka.NewReader(broker, edgesTopic, edgesGroup)
	defer func() {
		if err := edgesReader.Close(); err != nil {
			log.Printf("edges reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	consumeEdges(ctx, edgesReader, recorder)
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"crawlkit_graph_writer_up 1\n"+
			"crawlkit_graph_writer_edges_received_total %d\n"+
			"crawlkit_graph_writer_edges_failed_total %d\n"+
			"crawlkit_graph_writer_edges_written_total %d\n",
		atomic.LoadUint64(&graphWriterEdgesReceived),
		atomic.LoadUint64(&graphWriterEdgesFailed),
		atomic.LoadUint64(&graphWriterEdgesWritten),
	)
	_, _ = w.Write([]byte(body))
}

// consumeEdges fetches graph.Edge messages off reader and records each
// one, committing a message only after its write succeeds. A message
// whose decode or write fails is logged and skipped, not retried; once a
// later message is written and committed, the committed offset moves
// past the failed one.
func consumeEdges(ctx context.Context, reader kafka.MessageReader, recorder graph.Recorder) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("edges fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&graphWriterEdgesReceived, 1)
		if err := writeEdge(ctx, recorder, msg.Value); err != nil {
			atomic.AddUint64(&graphWriterEdgesFailed, 1)
			log.Printf("edges write error: %v", err)
			continue
		}
		atomic.AddUint64(&graphWriterEdgesWritten, 1)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("edges commit error: %v", err)
		}
	}
}

func writeEdge(ctx context.Context, recorder graph.Recorder, payload []byte) error {
	var edge graph.Edge
	if err := json.Unmarshal(payload, &edge); err != nil {
		return err
	}
	if edge.From == "" || edge.To == "" {
		return nil
	}
	return recorder.Record(ctx, edge)
}
