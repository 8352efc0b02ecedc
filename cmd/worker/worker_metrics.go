package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// Counters for session lifecycle activity exposed on /metrics.
	workerSessionsReceived uint64 // SessionStart messages read from Kafka
	workerSessionsStarted  uint64 // engines that successfully began ticking
	workerSessionsFailed   uint64 // sessions whose frontier seeding failed
	workerSessionsInFlight int64  // gauge: sessions currently running

	workerEventsRelayed  uint64 // events forwarded from a session bus to Kafka
	workerEdgesPublished uint64 // graph.Edge messages published to the edges topic

	// Worker V2 (concurrent + commit coordinator) observability.
	workerCommitErrorsTotal  uint64 // counter: Kafka CommitMessages failures; detect commit issues
	workerCommitPendingTotal int64  // gauge: messages buffered in coordinator awaiting commit; monitor backlog
	// Histogram for Kafka commit latency (seconds). Buckets: upper bounds; +Inf implicit.
	commitLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	commitLatencyCounts  = make([]uint64, len(commitLatencyBuckets)+1) // per-bucket counts; last slot = +Inf
	commitLatencySumNs   uint64                                       // sum of observed durations (ns); for quantiles
	commitLatencyCount   uint64                                       // total observations; for quantiles
)

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
		"crawlkit_worker_up 1\n"+
			"crawlkit_worker_sessions_received_total %d\n"+
			"crawlkit_worker_sessions_started_total %d\n"+
			"crawlkit_worker_sessions_failed_total %d\n"+
			"crawlkit_worker_sessions_in_flight %d\n"+
			"crawlkit_worker_events_relayed_total %d\n"+
			"crawlkit_worker_edges_published_total %d\n"+
			"crawlkit_worker_commit_errors_total %d\n"+
			"crawlkit_worker_commit_pending_total %d\n",
		atomic.LoadUint64(&workerSessionsReceived),
		atomic.LoadUint64(&workerSessionsStarted),
		atomic.LoadUint64(&workerSessionsFailed),
		atomic.LoadInt64(&workerSessionsInFlight),
		atomic.LoadUint64(&workerEventsRelayed),
		atomic.LoadUint64(&workerEdgesPublished),
		atomic.LoadUint64(&workerCommitErrorsTotal),
		atomic.LoadInt64(&workerCommitPendingTotal),
	)

	var commitHist strings.Builder
	commitHist.WriteString("# HELP crawlkit_worker_commit_latency_seconds Kafka commit latency.\n")
	commitHist.WriteString("# TYPE crawlkit_worker_commit_latency_seconds histogram\n")
	appendHistogram(&commitHist, "crawlkit_worker_commit_latency_seconds", commitLatencyBuckets,
		commitLatencyCounts, &commitLatencySumNs, &commitLatencyCount, "%.3f")

	_, _ = w.Write([]byte(body + commitHist.String()))
}

// appendHistogram writes a Prometheus histogram (buckets, +Inf, sum, count) to sb.
// counts must have len(buckets)+1 elements; leFmt formats bucket bounds (e.g. "%.2f").
func appendHistogram(sb *strings.Builder, name string, buckets []float64, counts []uint64, sumNs, count *uint64, leFmt string) {
	var cumulative uint64
	for i, bound := range buckets {
		cumulative += atomic.LoadUint64(&counts[i])
		sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%s\"} %d\n", name, fmt.Sprintf(leFmt, bound), cumulative))
	}
	cumulative += atomic.LoadUint64(&counts[len(buckets)])
	sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", name, cumulative))
	sumSeconds := float64(atomic.LoadUint64(sumNs)) / float64(time.Second)
	sb.WriteString(fmt.Sprintf("%s_sum %.6f\n", name, sumSeconds))
	sb.WriteString(fmt.Sprintf("%s_count %d\n", name, atomic.LoadUint64(count)))
}

// observeCommitLatency updates the Kafka commit latency histogram.
func observeCommitLatency(duration time.Duration) {
	if duration <= 0 {
		return
	}
	seconds := duration.Seconds()
	bucketIndex := len(commitLatencyBuckets)
	for i, bound := range commitLatencyBuckets {
		if seconds <= bound {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&commitLatencyCounts[bucketIndex], 1)
	atomic.AddUint64(&commitLatencySumNs, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&commitLatencyCount, 1)
}
