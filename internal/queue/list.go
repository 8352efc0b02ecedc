package queue

import (
	"context"
	"errors"
)

// ErrQueueEmpty is returned by GetNextUrl when no uncrawled entry remains.
var ErrQueueEmpty = errors.New("queue: empty")

// UrlList is the capability interface the crawl engine dequeues from and
// records outcomes into. Implementations must be safe for concurrent
// callers: two concurrent GetNextUrl calls must never return the same URL.
type UrlList interface {
	// InsertIfNotExists adds record if its URL is not already present.
	// Idempotent: inserting the same URL any number of times has the same
	// effect as inserting it once.
	InsertIfNotExists(ctx context.Context, record UrlRecord) error

	// GetNextUrl returns one queue entry with crawled=false, atomically
	// transitioning it to crawled=true. Returns ErrQueueEmpty when no such
	// entry exists.
	GetNextUrl(ctx context.Context) (UrlRecord, error)

	// Upsert stores the outcome for record's URL, creating the row if it
	// is missing.
	Upsert(ctx context.Context, record UrlRecord) error
}

// BulkInserter is an optional capability: a UrlList that can insert many
// records in one round-trip to its backing store. The engine detects this
// via a type assertion and falls back to per-item InsertIfNotExists when a
// UrlList does not implement it (spec note: "the engine must detect
// presence of the optional bulk-insert operation").
type BulkInserter interface {
	InsertIfNotExistsBulk(ctx context.Context, records []UrlRecord) error
}

// InsertAll inserts records one at a time via list, or in one round-trip if
// list implements BulkInserter.
func InsertAll(ctx context.Context, list UrlList, records []UrlRecord) error {
	if len(records) == 0 {
		return nil
	}
	if bulk, ok := list.(BulkInserter); ok {
		return bulk.InsertIfNotExistsBulk(ctx, records)
	}
	for _, r := range records {
		if err := list.InsertIfNotExists(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
