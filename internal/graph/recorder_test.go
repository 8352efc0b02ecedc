package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeSession struct {
	executed func(work neo4j.ManagedTransactionWork) (any, error)
	closed   bool
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
	return s.executed(work)
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	session *fakeSession
}

func (d *fakeDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.session
}

func (d *fakeDriver) Close(ctx context.Context) error {
	return nil
}

func TestNeo4jRecorder_RecordClosesSessionOnSuccess(t *testing.T) {
	session := &fakeSession{
		executed: func(work neo4j.ManagedTransactionWork) (any, error) {
			return nil, nil
		},
	}
	driver := &fakeDriver{session: session}
	r := NewNeo4jRecorderWithDriver(driver)

	if err := r.Record(context.Background(), Edge{SessionID: "s1", From: "http://a/", To: "http://b/"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !session.closed {
		t.Fatal("expected session to be closed")
	}
}

func TestNeo4jRecorder_Close(t *testing.T) {
	driver := &fakeDriver{session: &fakeSession{}}
	r := NewNeo4jRecorderWithDriver(driver)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNeo4jRecorder_RecordPropagatesTransactionError(t *testing.T) {
	want := errors.New("boom")
	session := &fakeSession{
		executed: func(work neo4j.ManagedTransactionWork) (any, error) {
			return nil, want
		},
	}
	driver := &fakeDriver{session: session}
	r := NewNeo4jRecorderWithDriver(driver)

	err := r.Record(context.Background(), Edge{SessionID: "s1", From: "http://a/", To: "http://b/"})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
	if !session.closed {
		t.Fatal("expected session to be closed")
	}
}
