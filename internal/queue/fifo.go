package queue

import (
	"context"
	"sync"
)

// entry is the in-memory form of a queue entry: a UrlRecord plus the
// crawled flag. FifoUrlList keeps these in insertion order.
type entry struct {
	record  UrlRecord
	crawled bool
}

// FifoUrlList is an in-memory, insertion-ordered UrlList. It is not safe
// across processes; within one process, dequeue is serialised by its own
// mutex.
type FifoUrlList struct {
	mu      sync.Mutex
	order   []string   // insertion order of URLs
	byURL   map[string]int // URL -> index into order
	entries []entry        // parallel to order
	cursor  int             // next index to consider dequeuing
}

// NewFifoUrlList creates an empty FifoUrlList.
func NewFifoUrlList() *FifoUrlList {
	return &FifoUrlList{
		byURL: make(map[string]int),
	}
}

// InsertIfNotExists appends record on first sight of its URL; subsequent
// calls for the same URL are no-ops.
func (f *FifoUrlList) InsertIfNotExists(_ context.Context, record UrlRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertLocked(record)
	return nil
}

// InsertIfNotExistsBulk inserts many records under one lock acquisition.
func (f *FifoUrlList) InsertIfNotExistsBulk(_ context.Context, records []UrlRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.insertLocked(r)
	}
	return nil
}

func (f *FifoUrlList) insertLocked(record UrlRecord) {
	if _, exists := f.byURL[record.URL]; exists {
		return
	}
	record.ErrorCode = nil
	record.StatusCode = nil
	record.NumErrors = 0
	f.byURL[record.URL] = len(f.order)
	f.order = append(f.order, record.URL)
	f.entries = append(f.entries, entry{record: record})
}

// GetNextUrl advances the cursor past already-consumed entries and returns
// the next uncrawled one, marking it consumed. Fails with ErrQueueEmpty
// when the cursor reaches the end.
func (f *FifoUrlList) GetNextUrl(_ context.Context) (UrlRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.cursor < len(f.entries) {
		e := &f.entries[f.cursor]
		f.cursor++
		if !e.crawled {
			e.crawled = true
			return e.record, nil
		}
	}
	return UrlRecord{}, ErrQueueEmpty
}

// Upsert updates the stored record for record.URL in place, creating it
// (as already-crawled, since an outcome implies an attempt happened) if
// absent. On a failure outcome (record.ErrorCode != nil), NumErrors is
// computed from the previously stored value rather than trusting the
// caller's, as DbUrlList does; here the read and the write happen under
// the list's mutex, so concurrent attempts against the same URL can't
// race the counter.
func (f *FifoUrlList) Upsert(_ context.Context, record UrlRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, exists := f.byURL[record.URL]
	if record.ErrorCode != nil {
		var prior int
		if exists {
			prior = f.entries[idx].record.NumErrors
		}
		record.NumErrors = prior + 1
	} else {
		record.NumErrors = 0
	}

	if exists {
		f.entries[idx].record = record
		f.entries[idx].crawled = true
		return nil
	}
	f.byURL[record.URL] = len(f.order)
	f.order = append(f.order, record.URL)
	f.entries = append(f.entries, entry{record: record, crawled: true})
	return nil
}
