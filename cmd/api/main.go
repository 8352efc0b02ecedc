package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"crawlkit/common"
	"crawlkit/internal/kafka"
	"crawlkit/internal/queue"
	"crawlkit/internal/session"
)

type server struct {
	prod  kafka.SessionProducer
	store session.Store
	db    *sql.DB
}

func newServer(prod kafka.SessionProducer, store session.Store, db *sql.DB) *server {
	return &server{
		prod:  prod,
		store: store,
		db:    db,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_SESSION_TOPIC", "crawlkit.session.start")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	dbDSN := common.GetEnv("CRAWLKIT_DB_DSN", "file:crawlkit.db?_busy_timeout=5000")

	db, err := sql.Open("sqlite", dbDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	prod := kafka.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	sessionStore := session.NewRedisStore(redisAddr, "crawlkit:session:", 24*time.Hour)
	defer func() {
		if err := sessionStore.Close(); err != nil {
			log.Printf("failed to close session store: %v", err)
		}
	}()

	srv := newServer(prod, sessionStore, db)

	mux := http.NewServeMux()
	mux.HandleFunc("/crawl", srv.handleCrawl)
	mux.HandleFunc("/crawl/", srv.handleCrawlStatus)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	addr := ":8080"
	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleCrawl accepts POST requests to start a crawl session from one or
// more seed URLs.
//
// Method: POST
// Path:   /crawl?url=...&url=...
// Example:
//
//	curl -X POST "http://localhost:8080/crawl?url=https://example.com/&url=https://example.org/"
func (s *server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seeds := trimmedSeeds(r.URL.Query()["url"])
	if len(seeds) == 0 {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	id := newSessionID()
	now := time.Now().UTC()
	sess := session.Session{
		ID:        id,
		SeedURLs:  seeds,
		Status:    session.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tableName := sessionTableName(id)
	urlList := queue.NewDbUrlList(s.db, tableName)
	records := make([]queue.UrlRecord, len(seeds))
	for i, seed := range seeds {
		records[i] = queue.UrlRecord{URL: seed}
	}
	if err := queue.InsertAll(ctx, urlList, records); err != nil {
		http.Error(w, "failed to seed crawl frontier", http.StatusBadGateway)
		return
	}

	start := kafka.SessionStart{SessionID: id, TableName: tableName, SeedURLs: seeds}
	if err := s.prod.WriteSessionStart(ctx, start); err != nil {
		http.Error(w, "failed to enqueue session", http.StatusBadGateway)
		return
	}

	if err := s.store.SetSession(ctx, sess); err != nil {
		http.Error(w, "failed to persist session", http.StatusBadGateway)
		return
	}

	writeJSON(w, sess, http.StatusAccepted)
}

// handleCrawlStatus returns status for a previously created crawl session.
//
// Method: GET
// Path:   /crawl/{sessionID}
// Example:
//
//	curl "http://localhost:8080/crawl/20260119120000000000000"
func (s *server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/crawl/"), "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	sess, ok, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load session", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, sess, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
// Example:
//
//	curl "http://localhost:8080/metrics"
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("crawlkit_api_up 1\n"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func newSessionID() string {
	return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
}

func sessionTableName(sessionID string) string {
	return "url_" + sessionID
}

func trimmedSeeds(raw []string) []string {
	var seeds []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			seeds = append(seeds, s)
		}
	}
	return seeds
}
