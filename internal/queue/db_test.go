package queue

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDbUrlList_RoundTrip(t *testing.T) {
	ctx := context.Background()
	list := NewDbUrlList(openTestDB(t), "")

	if err := list.InsertIfNotExists(ctx, UrlRecord{URL: "http://a/"}); err != nil {
		t.Fatalf("InsertIfNotExists: %v", err)
	}
	rec, err := list.GetNextUrl(ctx)
	if err != nil {
		t.Fatalf("GetNextUrl: %v", err)
	}
	if rec.URL != "http://a/" {
		t.Fatalf("got %q", rec.URL)
	}
	if _, err := list.GetNextUrl(ctx); err != ErrQueueEmpty {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestDbUrlList_InsertIdempotent(t *testing.T) {
	ctx := context.Background()
	list := NewDbUrlList(openTestDB(t), "url")
	for i := 0; i < 3; i++ {
		if err := list.InsertIfNotExists(ctx, UrlRecord{URL: "http://a/"}); err != nil {
			t.Fatalf("InsertIfNotExists: %v", err)
		}
	}
	if _, err := list.GetNextUrl(ctx); err != nil {
		t.Fatalf("GetNextUrl: %v", err)
	}
	if _, err := list.GetNextUrl(ctx); err != ErrQueueEmpty {
		t.Fatalf("expected queue to have exactly one entry, got err=%v", err)
	}
}

func TestDbUrlList_BulkInsert(t *testing.T) {
	ctx := context.Background()
	list := NewDbUrlList(openTestDB(t), "url")
	urls := []UrlRecord{{URL: "http://a/1"}, {URL: "http://a/2"}, {URL: "http://a/1"}}
	if err := list.InsertIfNotExistsBulk(ctx, urls); err != nil {
		t.Fatalf("InsertIfNotExistsBulk: %v", err)
	}
	seen := map[string]bool{}
	for {
		rec, err := list.GetNextUrl(ctx)
		if err == ErrQueueEmpty {
			break
		}
		if err != nil {
			t.Fatalf("GetNextUrl: %v", err)
		}
		seen[rec.URL] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 distinct URLs, got %d (%v)", len(seen), seen)
	}
}

func TestDbUrlList_UpsertSuccessResetsErrors(t *testing.T) {
	ctx := context.Background()
	list := NewDbUrlList(openTestDB(t), "url")
	if err := list.InsertIfNotExists(ctx, UrlRecord{URL: "http://a/"}); err != nil {
		t.Fatalf("InsertIfNotExists: %v", err)
	}

	code := ErrHTTP
	status := 500
	if err := list.Upsert(ctx, UrlRecord{URL: "http://a/", ErrorCode: &code, StatusCode: &status}); err != nil {
		t.Fatalf("Upsert failure: %v", err)
	}

	okStatus := 200
	if err := list.Upsert(ctx, UrlRecord{URL: "http://a/", StatusCode: &okStatus}); err != nil {
		t.Fatalf("Upsert success: %v", err)
	}

	var numErrors int
	var errorCode sql.NullString
	row := list.db.QueryRowContext(ctx, `SELECT num_errors, error_code FROM url WHERE url_hash = ?`, urlHash("http://a/"))
	if err := row.Scan(&numErrors, &errorCode); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if numErrors != 0 || errorCode.Valid {
		t.Fatalf("expected reset state, got num_errors=%d error_code_valid=%v", numErrors, errorCode.Valid)
	}
}

func TestDbUrlList_UpsertFailureIncrementsNumErrors(t *testing.T) {
	ctx := context.Background()
	list := NewDbUrlList(openTestDB(t), "url")
	if err := list.InsertIfNotExists(ctx, UrlRecord{URL: "http://a/"}); err != nil {
		t.Fatalf("InsertIfNotExists: %v", err)
	}

	code := ErrRequest
	for i := 1; i <= 3; i++ {
		if err := list.Upsert(ctx, UrlRecord{URL: "http://a/", ErrorCode: &code, ErrorMessage: "boom"}); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
		var numErrors int
		row := list.db.QueryRowContext(ctx, `SELECT num_errors FROM url WHERE url_hash = ?`, urlHash("http://a/"))
		if err := row.Scan(&numErrors); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if numErrors != i {
			t.Fatalf("after upsert #%d, num_errors = %d, want %d", i, numErrors, i)
		}
	}
}

func TestDbUrlList_ConcurrentDequeueAtMostOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.SetMaxOpenConns(4)
	list := NewDbUrlList(db, "url")

	const n = 100
	records := make([]UrlRecord, n)
	for i := range records {
		records[i] = UrlRecord{URL: urlFor(i)}
	}
	if err := list.InsertIfNotExistsBulk(ctx, records); err != nil {
		t.Fatalf("InsertIfNotExistsBulk: %v", err)
	}

	seen := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := list.GetNextUrl(ctx)
				if err == ErrQueueEmpty {
					return
				}
				if err != nil {
					t.Errorf("GetNextUrl: %v", err)
					return
				}
				mu.Lock()
				seen[rec.URL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct URLs, got %d", n, len(seen))
	}
	for u, c := range seen {
		if c != 1 {
			t.Fatalf("url %q dequeued %d times", u, c)
		}
	}
}
