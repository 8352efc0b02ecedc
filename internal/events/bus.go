// Package events implements the crawl pipeline's observability surface:
// a fixed set of events a crawl emits, fanned out to subscribers over
// per-subscriber buffered channels so a slow or stuck subscriber never
// blocks a tick chain.
package events

import (
	"sync"

	"crawlkit/internal/queue"
)

// Kind names one of the fixed set of events a crawl emits.
type Kind string

const (
	KindCrawlURL        Kind = "crawlurl"
	KindCrawledURL      Kind = "crawledurl"
	KindRedirect        Kind = "redirect"
	KindLinks           Kind = "links"
	KindHTTPError       Kind = "httpError"
	KindHandlersError   Kind = "handlersError"
	KindURLListEmpty    Kind = "urllistempty"
	KindURLListComplete Kind = "urllistcomplete"
)

// Event is the payload published for every Kind. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	URL         string
	Location    string          // redirect
	Links       []string        // links
	StatusCode  *int            // crawledurl, httpError
	ErrorCode   *queue.ErrorCode // crawledurl (failed attempts only)
	ErrorMsg    string          // crawledurl, httpError, handlersError
}

// Publisher is the narrow interface the crawl engine depends on; it
// never blocks on a slow subscriber.
type Publisher interface {
	Publish(e Event)
}

// Bus is an in-process Publisher that fans each Event out to every
// subscriber registered via Subscribe. Each subscriber gets its own
// buffered channel; a full channel drops the event rather than
// blocking the publisher, so a stalled subscriber can never throttle
// the crawl's own request pacing.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	bufferSize  int
}

// NewBus creates a Bus whose subscriber channels are each buffered to
// bufferSize. A bufferSize of 0 or less defaults to 64.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers a new subscriber and returns a channel of events
// it will receive. Subscribe may be called after Publish has already
// started; subscription takes effect for subsequent Publish calls only.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers e to every current subscriber. A subscriber whose
// buffer is full has the event dropped for it rather than blocking the
// caller.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish must not be called
// after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
