package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	_ "modernc.org/sqlite"

	"crawlkit/internal/mocks"
	"crawlkit/internal/session"
)

func newTestServer(t *testing.T, expectWrite bool) (*server, *mocks.MockStore) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	prod := mocks.NewMockSessionProducer(ctrl)
	if expectWrite {
		prod.EXPECT().WriteSessionStart(gomock.Any(), gomock.Any()).Return(nil)
	} else {
		prod.EXPECT().WriteSessionStart(gomock.Any(), gomock.Any()).Times(0)
	}

	store := mocks.NewMockStore(ctrl)

	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &server{
		prod:  prod,
		store: store,
		db:    db,
	}, store
}

func TestHandleCrawl(t *testing.T) {
	srv, store := newTestServer(t, true)
	store.EXPECT().SetSession(gomock.Any(), gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/crawl?url=https://example.com/", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawl(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var payload session.Session
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.ID == "" {
		t.Fatal("expected session id to be set")
	}
	if len(payload.SeedURLs) != 1 || payload.SeedURLs[0] != "https://example.com/" {
		t.Fatalf("unexpected seed urls: %v", payload.SeedURLs)
	}
	if payload.Status != session.StatusQueued {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
}

func TestHandleCrawlMultipleSeeds(t *testing.T) {
	srv, store := newTestServer(t, true)
	store.EXPECT().SetSession(gomock.Any(), gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/crawl?url=https://a.example/&url=https://b.example/", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawl(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var payload session.Session
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.SeedURLs) != 2 {
		t.Fatalf("expected 2 seed urls, got %v", payload.SeedURLs)
	}
}

func TestHandleCrawlMissingURL(t *testing.T) {
	srv, store := newTestServer(t, false)
	store.EXPECT().SetSession(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodPost, "/crawl", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawl(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleCrawlMethodNotAllowed(t *testing.T) {
	srv, store := newTestServer(t, false)
	store.EXPECT().SetSession(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodGet, "/crawl?url=https://example.com/", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawl(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleCrawlStatus(t *testing.T) {
	srv, store := newTestServer(t, false)

	want := session.Session{ID: "abc123", SeedURLs: []string{"https://example.com/"}, Status: session.StatusRunning}
	store.EXPECT().GetSession(gomock.Any(), "abc123").Return(want, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/crawl/abc123", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got session.Session
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != want.ID || got.Status != want.Status {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestHandleCrawlStatusNotFound(t *testing.T) {
	srv, store := newTestServer(t, false)
	store.EXPECT().GetSession(gomock.Any(), gomock.Any()).Return(session.Session{}, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/crawl/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHandleCrawlStatusMissingID(t *testing.T) {
	srv, store := newTestServer(t, false)
	store.EXPECT().GetSession(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodGet, "/crawl/", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Body.String(); got != "crawlkit_api_up 1\n" {
		t.Fatalf("unexpected metrics body: %s", got)
	}
}
