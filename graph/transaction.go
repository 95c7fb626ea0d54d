package graph

import (
	"time"

	"github.com/google/uuid"
)

// Transaction the operations a script may run against the graph.
// A transaction is used by one goroutine at a time and either commits once or rolls back.
type Transaction interface {
	GetVertex(id uuid.UUID) (Vertex, error)
	GetVertexRange(startID uuid.UUID, limit uint16) ([]Vertex, error)
	CreateVertex(t Type, properties map[string]interface{}) (uuid.UUID, error)
	SetVertex(vertex Vertex) error
	DeleteVertex(id uuid.UUID) error

	GetEdge(key EdgeKey) (Edge, error)
	SetEdge(edge Edge) error
	DeleteEdge(key EdgeKey) error

	GetEdgeCount(outboundID uuid.UUID, t Type) (uint64, error)
	GetEdgeRange(outboundID uuid.UUID, t Type, offset uint64, limit uint16) ([]Edge, error)
	GetEdgeTimeRange(outboundID uuid.UUID, t Type, high *time.Time, low *time.Time, limit uint16) ([]Edge, error)

	GetReversedEdgeCount(inboundID uuid.UUID, t Type) (uint64, error)
	GetReversedEdgeRange(inboundID uuid.UUID, t Type, offset uint64, limit uint16) ([]Edge, error)
	GetReversedEdgeTimeRange(inboundID uuid.UUID, t Type, high *time.Time, low *time.Time, limit uint16) ([]Edge, error)

	GetGlobalMetadata(key string) (interface{}, error)
	SetGlobalMetadata(key string, value interface{}) error
	DeleteGlobalMetadata(key string) error

	GetAccountMetadata(owner uuid.UUID, key string) (interface{}, error)
	SetAccountMetadata(owner uuid.UUID, key string, value interface{}) error
	DeleteAccountMetadata(owner uuid.UUID, key string) error

	GetVertexMetadata(owner uuid.UUID, key string) (interface{}, error)
	SetVertexMetadata(owner uuid.UUID, key string, value interface{}) error
	DeleteVertexMetadata(owner uuid.UUID, key string) error

	GetEdgeMetadata(owner EdgeKey, key string) (interface{}, error)
	SetEdgeMetadata(owner EdgeKey, key string, value interface{}) error
	DeleteEdgeMetadata(owner EdgeKey, key string) error

	Commit() error
	Rollback() error
}

// Datastore opens graph transactions
type Datastore interface {
	Transaction(accountID uuid.UUID) (Transaction, error)
	Close() error
}
