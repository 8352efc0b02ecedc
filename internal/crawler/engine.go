package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"crawlkit/internal/events"
	"crawlkit/internal/handlers"
	"crawlkit/internal/queue"
	"crawlkit/internal/robots"
)

// Engine is the crawl engine: a pool of independent tick chains that
// dequeue from a UrlList, run the per-URL pipeline, and upsert
// outcomes, pacing request starts across all chains.
type Engine struct {
	config    Config
	deps      pipelineDeps
	publisher events.Publisher

	mu               sync.Mutex
	started          bool
	lastRequestStart time.Time
	outstanding      int64

	wg sync.WaitGroup
}

// New builds an Engine. urlList defaults to a FifoUrlList when nil.
// registry defaults to an empty Registry when nil. publisher defaults
// to a no-op publisher when nil.
func New(config Config, urlList queue.UrlList, robotsCache robots.Cache, registry *handlers.Registry, publisher events.Publisher) *Engine {
	if urlList == nil {
		urlList = queue.NewFifoUrlList()
	}
	if robotsCache == nil {
		robotsCache = robots.NewMemoryCache()
	}
	if registry == nil {
		registry = handlers.NewRegistry()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if config.ConcurrentRequestsLimit <= 0 {
		config.ConcurrentRequestsLimit = 1
	}

	return &Engine{
		config:    config,
		publisher: publisher,
		deps: pipelineDeps{
			client:      &http.Client{},
			urlList:     urlList,
			robotsCache: robotsCache,
			registry:    registry,
			publisher:   publisher,
			config:      config,
		},
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// UrlList exposes the engine's queue for callers that want to seed it
// before or after Start.
func (e *Engine) UrlList() queue.UrlList {
	return e.deps.urlList
}

// SetHTTPClient replaces the engine's HTTP client. Call before Start;
// tick chains read deps.client on every fetch, so a client swapped in
// after Start races with in-flight fetches.
func (e *Engine) SetHTTPClient(c *http.Client) {
	e.deps.client = c
}

// Start spawns ConcurrentRequestsLimit independent tick chains. It
// returns immediately; chains run until Stop is called or ctx is
// canceled.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()

	for i := 0; i < e.config.ConcurrentRequestsLimit; i++ {
		e.wg.Add(1)
		go e.tickChain(ctx)
	}
}

// Stop sets started=false. In-flight work runs to completion; no new
// dequeues occur. Stop does not wait for chains to drain — call Wait
// for that.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
}

// Wait blocks until every tick chain has exited (after Stop or ctx
// cancellation).
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) isStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// reserveSlot computes the earliest time this chain may start its next
// request, synchronously reserving that slot by writing
// lastRequestStart. This is critical: it serialises pacing across all
// chains, so no two chains can observe the same stale value and fire
// simultaneously.
func (e *Engine) reserveSlot(url string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	interval := time.Duration(e.config.Interval.Resolve(url)) * time.Millisecond
	var nextAllowed time.Time
	if e.lastRequestStart.IsZero() {
		nextAllowed = now
	} else {
		nextAllowed = e.lastRequestStart.Add(interval)
	}

	if nextAllowed.After(now) {
		return nextAllowed.Sub(now)
	}
	e.lastRequestStart = now
	return 0
}

func (e *Engine) tickChain(ctx context.Context) {
	defer e.wg.Done()

	for {
		if ctx.Err() != nil || !e.isStarted() {
			return
		}

		wait := e.reserveSlot("")
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		rec, err := e.deps.urlList.GetNextUrl(ctx)
		if errors.Is(err, queue.ErrQueueEmpty) {
			e.publisher.Publish(events.Event{Kind: events.KindURLListEmpty})
			if atomic.LoadInt64(&e.outstanding) == 0 {
				e.publisher.Publish(events.Event{Kind: events.KindURLListComplete})
			}
			interval := time.Duration(e.config.Interval.Resolve("")) * time.Millisecond
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
			continue
		}
		if err != nil {
			return
		}

		atomic.AddInt64(&e.outstanding, 1)
		outcome, procErr := e.deps.processURL(ctx, rec.URL)
		if procErr != nil {
			atomic.AddInt64(&e.outstanding, -1)
			return
		}
		if err := e.deps.urlList.Upsert(ctx, outcome); err != nil {
			atomic.AddInt64(&e.outstanding, -1)
			return
		}
		atomic.AddInt64(&e.outstanding, -1)
	}
}
