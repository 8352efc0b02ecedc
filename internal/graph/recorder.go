// Package graph persists the link structure discovered by a crawl into
// Neo4j: one (:Url) node per seen URL, one LINKS_TO relationship per
// discovered link.
package graph

import (
	"context"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Edge is a single discovered link, From one URL To another, within
// one crawl session.
type Edge struct {
	SessionID string
	From      string
	To        string
}

// Recorder persists Edges. Implementations must be safe for concurrent
// use.
type Recorder interface {
	Record(ctx context.Context, edge Edge) error
	Close(ctx context.Context) error
}

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Neo4jRecorder is a Recorder backed by Neo4j. Edges are upserted with
// MERGE, so recording the same edge twice is a no-op on the graph.
type Neo4jRecorder struct {
	driver DriverSessioner
}

// NewNeo4jRecorder connects to uri with the given credentials.
func NewNeo4jRecorder(uri, user, password string) (*Neo4jRecorder, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}
	return &Neo4jRecorder{driver: &neo4jDriver{driver: driver}}, nil
}

// NewNeo4jRecorderWithDriver builds a Neo4jRecorder against a custom
// DriverSessioner (tests).
func NewNeo4jRecorderWithDriver(driver DriverSessioner) *Neo4jRecorder {
	return &Neo4jRecorder{driver: driver}
}

// Close closes the underlying Neo4j driver.
func (r *Neo4jRecorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Record upserts (:Url{url: edge.From})-[:LINKS_TO{session_id}]->(:Url{url: edge.To}).
func (r *Neo4jRecorder) Record(ctx context.Context, edge Edge) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			log.Printf("neo4j session close error: %v", err)
		}
	}()

	query := "MERGE (from:Url {url: $from}) " +
		"MERGE (to:Url {url: $to}) " +
		"MERGE (from)-[r:LINKS_TO {session_id: $session_id}]->(to)"
	params := map[string]any{
		"from":       edge.From,
		"to":         edge.To,
		"session_id": edge.SessionID,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}
