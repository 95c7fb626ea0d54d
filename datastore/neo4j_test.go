package datastore

import (
	"os"
	"testing"
	"time"
)

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestNeo4j(t *testing.T) {
	url := os.Getenv("BRAID_TEST_NEO4J_URL")
	if url == "" {
		t.Skip("BRAID_TEST_NEO4J_URL environment variable not set")
	}

	store, err := New(Option{
		Type:     "neo4j",
		URL:      url,
		Username: getEnvOrDefault("BRAID_TEST_NEO4J_USER", "neo4j"),
		Password: getEnvOrDefault("BRAID_TEST_NEO4J_PASS", "password"),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Skipf("Connect failed (Neo4j server might not be running): %v", err)
	}
	defer store.Close()

	t.Run("Vertex", func(t *testing.T) { testVertex(t, store) })
	t.Run("Edge", func(t *testing.T) { testEdge(t, store) })
	t.Run("EdgeRange", func(t *testing.T) { testEdgeRange(t, store) })
	t.Run("EdgeTimeRange", func(t *testing.T) { testEdgeTimeRange(t, store) })
	t.Run("Metadata", func(t *testing.T) { testMetadata(t, store) })
	t.Run("Cascade", func(t *testing.T) { testCascade(t, store) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, store) })
}
