package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	_ "modernc.org/sqlite"

	"crawlkit/common"
	"crawlkit/internal/crawler"
	"crawlkit/internal/events"
	"crawlkit/internal/graph"
	"crawlkit/internal/handlers"
	"crawlkit/internal/kafka"
	"crawlkit/internal/queue"
	"crawlkit/internal/robots"
	"crawlkit/internal/session"
)

// worker hosts one crawler.Engine per active crawl session: it consumes
// SessionStart messages off Kafka, seeds and starts an engine for each,
// and relays the engine's events onward (to Kafka, to the edge graph, to
// session status) for as long as the worker process runs.
type worker struct {
	reader        kafka.MessageReader
	db            *sql.DB
	registry      *handlers.Registry
	client        *http.Client
	eventsPub     events.Publisher // forwards every event to Kafka for observability
	edgesWriter   kafka.MessageWriter
	sessionStore  session.Store
	engineConfig  crawler.Config
	sem           chan struct{}
	wg            *sync.WaitGroup
	commitCh      chan<- kafkago.Message

	mu       sync.Mutex
	doneOnce map[string]*sync.Once
}

func newWorker(
	reader kafka.MessageReader,
	db *sql.DB,
	registry *handlers.Registry,
	client *http.Client,
	eventsPub events.Publisher,
	edgesWriter kafka.MessageWriter,
	sessionStore session.Store,
	engineConfig crawler.Config,
	concurrentSessions int,
	commitCh chan<- kafkago.Message,
	wg *sync.WaitGroup,
) *worker {
	if concurrentSessions < 1 {
		concurrentSessions = 1
	}
	return &worker{
		reader:       reader,
		db:           db,
		registry:     registry,
		client:       client,
		eventsPub:    eventsPub,
		edgesWriter:  edgesWriter,
		sessionStore: sessionStore,
		engineConfig: engineConfig,
		sem:          make(chan struct{}, concurrentSessions),
		wg:           wg,
		commitCh:     commitCh,
		doneOnce:     make(map[string]*sync.Once),
	}
}

// buildHTTPClient mirrors a production crawl client: explicit connect
// and response-header timeouts so a hung origin can't hold a session
// slot indefinitely.
func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		ResponseHeaderTimeout: 25 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	sessionTopic := common.GetEnv("KAFKA_SESSION_TOPIC", "crawlkit.session.start")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "crawlkit-worker")
	eventsTopic := common.GetEnv("KAFKA_EVENTS_TOPIC", "crawlkit.crawl.events")
	edgesTopic := common.GetEnv("KAFKA_EDGES_TOPIC", "crawlkit.graph.edges")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	dbDSN := common.GetEnv("CRAWLKIT_DB_DSN", "file:crawlkit.db?_busy_timeout=5000")
	concurrentSessions := common.ParseInt(common.GetEnv("CONCURRENT_SESSIONS", "5"), 5)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")
	interval := common.ParseInt(common.GetEnv("CRAWL_INTERVAL_MS", "1000"), 1000)
	concurrentRequests := common.ParseInt(common.GetEnv("CRAWL_CONCURRENT_REQUESTS", "2"), 2)
	userAgent := common.GetEnv("CRAWL_USER_AGENT", "crawlkit")

	db, err := sql.Open("sqlite", dbDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reader := kafka.NewReader(broker, sessionTopic, groupID)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	eventsPub := events.NewKafkaPublisher(broker, eventsTopic)
	defer func() {
		if err := eventsPub.Close(); err != nil {
			log.Printf("failed to close events publisher: %v", err)
		}
	}()

	edgesWriter := kafka.NewWriter(broker, edgesTopic)
	defer func() {
		if err := edgesWriter.Close(); err != nil {
			log.Printf("failed to close edges writer: %v", err)
		}
	}()

	sessionStore := session.NewRedisStore(redisAddr, "crawlkit:session:", 24*time.Hour)
	defer func() {
		if err := sessionStore.Close(); err != nil {
			log.Printf("failed to close session store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	commitCh := make(chan kafkago.Message, concurrentSessions*2)
	coordinator := newCommitCoordinator(reader, commitCh)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	registry := handlers.NewRegistry()
	registry.Register(handlers.MatchType("text"), handlers.NewLinkExtractor())

	engineConfig := crawler.DefaultConfig()
	engineConfig.Interval = crawler.StaticInt(interval)
	engineConfig.ConcurrentRequestsLimit = concurrentRequests
	engineConfig.UserAgent = crawler.StaticString(userAgent)

	var wg sync.WaitGroup
	log.Printf("worker consuming topic=%s group=%s broker=%s concurrent_sessions=%d", sessionTopic, groupID, broker, concurrentSessions)
	w := newWorker(reader, db, registry, buildHTTPClient(), eventsPub, edgesWriter, sessionStore, engineConfig, concurrentSessions, commitCh, &wg)
	w.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
}

// run consumes messages from the session-start topic, dispatching a
// crawl session to a goroutine for each. It returns once ctx is
// canceled and every in-flight dispatch has been handed off.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			log.Printf("message dispatch error: %v", err)
		}
	}
}

// dispatchMessage parses a SessionStart and hands it to a session
// goroutine. The offset is committed as soon as the session goroutine
// is launched (its frontier lives in the database, not in this
// process), not when the crawl itself finishes — a session may run for
// the lifetime of the worker.
func (w *worker) dispatchMessage(ctx context.Context, msg kafkago.Message) error {
	var start kafka.SessionStart
	if err := json.Unmarshal(msg.Value, &start); err != nil {
		log.Printf("invalid session-start payload: %v", err)
		w.commitCh <- msg
		return nil
	}
	atomic.AddUint64(&workerSessionsReceived, 1)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.sem <- struct{}{}:
	}
	atomic.AddInt64(&workerSessionsInFlight, 1)
	w.wg.Add(1)
	go w.runSession(ctx, msg, start)
	w.commitCh <- msg
	return nil
}

// runSession starts a crawler.Engine for one session and relays its
// events until ctx is canceled (worker shutdown). One call owns one
// semaphore slot for the session's lifetime.
func (w *worker) runSession(ctx context.Context, msg kafkago.Message, start kafka.SessionStart) {
	defer func() {
		atomic.AddInt64(&workerSessionsInFlight, -1)
		<-w.sem
		w.wg.Done()
	}()

	log.Printf("starting session id=%s table=%s seeds=%d", start.SessionID, start.TableName, len(start.SeedURLs))

	urlList := queue.NewDbUrlList(w.db, start.TableName)
	seedRecords := make([]queue.UrlRecord, len(start.SeedURLs))
	for i, u := range start.SeedURLs {
		seedRecords[i] = queue.UrlRecord{URL: u}
	}
	if err := queue.InsertAll(ctx, urlList, seedRecords); err != nil {
		log.Printf("session %s: failed to seed frontier: %v", start.SessionID, err)
		atomic.AddUint64(&workerSessionsFailed, 1)
		return
	}

	now := time.Now().UTC()
	if err := w.sessionStore.SetSession(ctx, session.Session{
		ID:        start.SessionID,
		SeedURLs:  start.SeedURLs,
		Status:    session.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Printf("session %s: failed to mark running: %v", start.SessionID, err)
	}

	bus := events.NewBus(256)
	relayCh := bus.Subscribe()
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		w.relayEvents(ctx, start.SessionID, relayCh)
	}()

	eng := crawler.New(w.engineConfig, urlList, robots.NewMemoryCache(), w.registry, bus)
	eng.SetHTTPClient(w.client)
	eng.Start(ctx)
	atomic.AddUint64(&workerSessionsStarted, 1)

	eng.Wait()
	bus.Close()
	<-relayDone
}

// relayEvents forwards every event from a session's bus to Kafka for
// observability, turns "links" events into edge messages on the graph
// topic, and marks the session done the first time its frontier drains.
func (w *worker) relayEvents(ctx context.Context, sessionID string, ch <-chan events.Event) {
	for e := range ch {
		atomic.AddUint64(&workerEventsRelayed, 1)
		if w.eventsPub != nil {
			w.eventsPub.Publish(e)
		}

		if e.Kind == events.KindLinks && w.edgesWriter != nil {
			w.publishEdges(ctx, sessionID, e)
		}
		if e.Kind == events.KindURLListComplete {
			w.markSessionDone(ctx, sessionID)
		}
	}
}

func (w *worker) publishEdges(ctx context.Context, sessionID string, e events.Event) {
	msgs := make([]kafkago.Message, 0, len(e.Links))
	for _, link := range e.Links {
		payload, err := json.Marshal(graph.Edge{SessionID: sessionID, From: e.URL, To: link})
		if err != nil {
			continue
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(sessionID), Value: payload, Time: time.Now().UTC()})
	}
	if len(msgs) == 0 {
		return
	}
	if err := w.edgesWriter.WriteMessages(ctx, msgs...); err != nil {
		log.Printf("session %s: edge publish error: %v", sessionID, err)
		return
	}
	atomic.AddUint64(&workerEdgesPublished, uint64(len(msgs)))
}

// markSessionDone transitions a session to done at most once; a drained
// frontier is reported on every subsequent empty poll, but the status
// write should only happen the first time.
func (w *worker) markSessionDone(ctx context.Context, sessionID string) {
	w.mu.Lock()
	once, ok := w.doneOnce[sessionID]
	if !ok {
		once = &sync.Once{}
		w.doneOnce[sessionID] = once
	}
	w.mu.Unlock()

	once.Do(func() {
		sess, ok, err := w.sessionStore.GetSession(ctx, sessionID)
		if err != nil || !ok {
			sess = session.Session{ID: sessionID}
		}
		sess.Status = session.StatusDone
		sess.UpdatedAt = time.Now().UTC()
		if err := w.sessionStore.SetSession(ctx, sess); err != nil {
			log.Printf("session %s: failed to mark done: %v", sessionID, err)
		}
	})
}
