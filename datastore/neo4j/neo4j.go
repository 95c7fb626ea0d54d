// Package neo4j stores the graph in Neo4j. Vertices are (:Vertex) nodes, edges are [:EDGE]
// relationships carrying the edge type as a property, metadata are (:Metadata) nodes
// addressed by scope and owner. Properties and metadata values are stored as JSON strings.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
)

// Option the connection options
type Option struct {
	URL      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Store the neo4j graph datastore
type Store struct {
	driver neo4j.DriverWithContext
	option Option
}

// Connect establishes connection to Neo4j server
func Connect(ctx context.Context, option Option) (*Store, error) {
	if option.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	if option.Username == "" {
		option.Username = "neo4j"
	}

	if option.Timeout <= 0 {
		option.Timeout = 30 * time.Second
	}

	auth := neo4j.BasicAuth(option.Username, option.Password, "")
	driver, err := neo4j.NewDriverWithContext(option.URL, auth, func(c *neo4j.Config) {
		c.Log = &driverLogger{url: option.URL}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	store := &Store{driver: driver, option: option}
	if err := store.schema(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	log.Info("[neo4j] connected to %s", option.URL)
	return store, nil
}

// Transaction open an explicit write transaction
func (s *Store) Transaction(accountID uuid.UUID) (graph.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.option.Timeout)
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.option.Database,
	})

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		cancel()
		return nil, graph.Unexpected(err)
	}

	return &Transaction{
		ctx:       ctx,
		cancel:    cancel,
		session:   session,
		tx:        tx,
		accountID: accountID,
	}, nil
}

// Close closes the driver
func (s *Store) Close() error {
	if err := s.driver.Close(context.Background()); err != nil {
		return fmt.Errorf("failed to close Neo4j driver: %w", err)
	}
	return nil
}

func (s *Store) schema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.option.Database,
	})
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT braid_vertex_id IF NOT EXISTS FOR (v:Vertex) REQUIRE v.id IS UNIQUE",
		"CREATE INDEX braid_metadata IF NOT EXISTS FOR (m:Metadata) ON (m.scope, m.owner, m.key)",
	}

	for _, statement := range statements {
		result, err := session.Run(ctx, statement, nil)
		if err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
