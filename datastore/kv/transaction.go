package kv

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
)

// Transaction graph.Transaction over a key-value transaction
type Transaction struct {
	txn       Txn
	accountID uuid.UUID
	done      bool
}

type vertexRecord struct {
	Type       graph.Type             `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

type edgeRecord struct {
	Weight     float32                `json:"weight"`
	Properties map[string]interface{} `json:"properties"`
	UpdatedAt  time.Time              `json:"update_datetime"`
}

// New wrap a key-value transaction
func New(txn Txn, accountID uuid.UUID) *Transaction {
	return &Transaction{txn: txn, accountID: accountID}
}

// AccountID the account which opened the transaction
func (trans *Transaction) AccountID() uuid.UUID {
	return trans.accountID
}

// Vertices

// GetVertex get a vertex by id
func (trans *Transaction) GetVertex(id uuid.UUID) (graph.Vertex, error) {
	record := vertexRecord{}
	if err := trans.get(vertexKey(id), &record, graph.ErrVertexNotFound); err != nil {
		return graph.Vertex{}, err
	}
	return graph.NewVertex(id, record.Type, normalizeMap(record.Properties)), nil
}

// GetVertexRange list the vertices with an id greater than startID
func (trans *Transaction) GetVertexRange(startID uuid.UUID, limit uint16) ([]graph.Vertex, error) {
	ids := []uuid.UUID{}
	if limit == 0 {
		return []graph.Vertex{}, nil
	}

	start := vertexKey(startID)
	err := trans.txn.Iterate(vertexPrefix, start, func(key string, value []byte) (bool, error) {
		if key == start {
			return true, nil
		}
		id, err := uuid.Parse(key[len(vertexPrefix):])
		if err != nil {
			return false, err
		}
		ids = append(ids, id)
		return len(ids) < int(limit), nil
	})
	if err != nil {
		return nil, graph.Unexpected(err)
	}

	vertices := make([]graph.Vertex, 0, len(ids))
	for _, id := range ids {
		vertex, err := trans.GetVertex(id)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, vertex)
	}
	return vertices, nil
}

// CreateVertex create a new vertex and return its id
func (trans *Transaction) CreateVertex(t graph.Type, properties map[string]interface{}) (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, graph.Unexpected(err)
	}

	if properties == nil {
		properties = map[string]interface{}{}
	}

	err = trans.put(vertexKey(id), vertexRecord{Type: t, Properties: properties})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SetVertex update an existing vertex
func (trans *Transaction) SetVertex(vertex graph.Vertex) error {
	has, err := trans.has(vertexKey(vertex.ID))
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrVertexNotFound
	}

	properties := vertex.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return trans.put(vertexKey(vertex.ID), vertexRecord{Type: vertex.Type, Properties: properties})
}

// DeleteVertex delete a vertex, its edges in both directions and its metadata
func (trans *Transaction) DeleteVertex(id uuid.UUID) error {
	has, err := trans.has(vertexKey(id))
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrVertexNotFound
	}

	edges := []graph.EdgeKey{}
	err = trans.txn.Iterate(edgeVertexPrefix(id), edgeVertexPrefix(id), func(key string, _ []byte) (bool, error) {
		out, t, in, ok := parseEdgeKey(edgePrefix, key)
		if ok {
			edges = append(edges, graph.NewEdgeKey(out, t, in))
		}
		return true, nil
	})
	if err != nil {
		return graph.Unexpected(err)
	}

	err = trans.txn.Iterate(reversedVertexPrefix(id), reversedVertexPrefix(id), func(key string, _ []byte) (bool, error) {
		in, t, out, ok := parseEdgeKey(reversedPrefix, key)
		if ok && out != id {
			edges = append(edges, graph.NewEdgeKey(out, t, in))
		}
		return true, nil
	})
	if err != nil {
		return graph.Unexpected(err)
	}

	for _, key := range edges {
		if err := trans.deleteEdge(key); err != nil {
			return err
		}
	}

	if err := trans.deletePrefix(vertexMetadataPrefix(id)); err != nil {
		return err
	}

	log.Trace("[kv] delete vertex %s with %d edges", id, len(edges))
	return trans.delete(vertexKey(id))
}

// Edges

// GetEdge get an edge by key
func (trans *Transaction) GetEdge(key graph.EdgeKey) (graph.Edge, error) {
	record := edgeRecord{}
	if err := trans.get(edgeKey(key), &record, graph.ErrEdgeNotFound); err != nil {
		return graph.Edge{}, err
	}
	edge := graph.NewEdge(key, graph.Weight(record.Weight), normalizeMap(record.Properties))
	edge.UpdatedAt = record.UpdatedAt
	return edge, nil
}

// SetEdge create or update an edge, both vertices must exist
func (trans *Transaction) SetEdge(edge graph.Edge) error {
	for _, id := range []uuid.UUID{edge.Key.OutboundID, edge.Key.InboundID} {
		has, err := trans.has(vertexKey(id))
		if err != nil {
			return err
		}
		if !has {
			return graph.ErrVertexNotFound
		}
	}

	properties := edge.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}

	record := edgeRecord{
		Weight:     float32(edge.Weight),
		Properties: properties,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := trans.put(edgeKey(edge.Key), record); err != nil {
		return err
	}

	if err := trans.txn.Set(reversedKey(edge.Key), []byte{}); err != nil {
		return graph.Unexpected(err)
	}
	return nil
}

// DeleteEdge delete an edge and its metadata
func (trans *Transaction) DeleteEdge(key graph.EdgeKey) error {
	has, err := trans.has(edgeKey(key))
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrEdgeNotFound
	}
	return trans.deleteEdge(key)
}

// GetEdgeCount count the outbound edges of the given type
func (trans *Transaction) GetEdgeCount(outboundID uuid.UUID, t graph.Type) (uint64, error) {
	return trans.count(edgeTypePrefix(outboundID, t))
}

// GetEdgeRange list the outbound edges of the given type
func (trans *Transaction) GetEdgeRange(outboundID uuid.UUID, t graph.Type, offset uint64, limit uint16) ([]graph.Edge, error) {
	if limit == 0 {
		return []graph.Edge{}, nil
	}

	keys, err := trans.keyRange(edgePrefix, edgeTypePrefix(outboundID, t), offset, limit, false)
	if err != nil {
		return nil, err
	}
	return trans.edges(keys)
}

// GetEdgeTimeRange list the outbound edges of the given type updated between low and high, newest first
func (trans *Transaction) GetEdgeTimeRange(outboundID uuid.UUID, t graph.Type, high *time.Time, low *time.Time, limit uint16) ([]graph.Edge, error) {
	keys, err := trans.keyRange(edgePrefix, edgeTypePrefix(outboundID, t), 0, 0, false)
	if err != nil {
		return nil, err
	}
	return trans.timeRange(keys, high, low, limit)
}

// GetReversedEdgeCount count the inbound edges of the given type
func (trans *Transaction) GetReversedEdgeCount(inboundID uuid.UUID, t graph.Type) (uint64, error) {
	return trans.count(reversedTypePrefix(inboundID, t))
}

// GetReversedEdgeRange list the inbound edges of the given type
func (trans *Transaction) GetReversedEdgeRange(inboundID uuid.UUID, t graph.Type, offset uint64, limit uint16) ([]graph.Edge, error) {
	if limit == 0 {
		return []graph.Edge{}, nil
	}

	keys, err := trans.keyRange(reversedPrefix, reversedTypePrefix(inboundID, t), offset, limit, true)
	if err != nil {
		return nil, err
	}
	return trans.edges(keys)
}

// GetReversedEdgeTimeRange list the inbound edges of the given type updated between low and high, newest first
func (trans *Transaction) GetReversedEdgeTimeRange(inboundID uuid.UUID, t graph.Type, high *time.Time, low *time.Time, limit uint16) ([]graph.Edge, error) {
	keys, err := trans.keyRange(reversedPrefix, reversedTypePrefix(inboundID, t), 0, 0, true)
	if err != nil {
		return nil, err
	}
	return trans.timeRange(keys, high, low, limit)
}

// Metadata

// GetGlobalMetadata get a global metadata value
func (trans *Transaction) GetGlobalMetadata(key string) (interface{}, error) {
	return trans.getMetadata(globalMetadataKey(key))
}

// SetGlobalMetadata set a global metadata value
func (trans *Transaction) SetGlobalMetadata(key string, value interface{}) error {
	return trans.put(globalMetadataKey(key), value)
}

// DeleteGlobalMetadata delete a global metadata value
func (trans *Transaction) DeleteGlobalMetadata(key string) error {
	return trans.deleteMetadata(globalMetadataKey(key))
}

// GetAccountMetadata get an account metadata value
func (trans *Transaction) GetAccountMetadata(owner uuid.UUID, key string) (interface{}, error) {
	return trans.getMetadata(accountMetadataKey(owner, key))
}

// SetAccountMetadata set an account metadata value
func (trans *Transaction) SetAccountMetadata(owner uuid.UUID, key string, value interface{}) error {
	return trans.put(accountMetadataKey(owner, key), value)
}

// DeleteAccountMetadata delete an account metadata value
func (trans *Transaction) DeleteAccountMetadata(owner uuid.UUID, key string) error {
	return trans.deleteMetadata(accountMetadataKey(owner, key))
}

// GetVertexMetadata get a vertex metadata value
func (trans *Transaction) GetVertexMetadata(owner uuid.UUID, key string) (interface{}, error) {
	return trans.getMetadata(vertexMetadataKey(owner, key))
}

// SetVertexMetadata set a vertex metadata value, the vertex must exist
func (trans *Transaction) SetVertexMetadata(owner uuid.UUID, key string, value interface{}) error {
	has, err := trans.has(vertexKey(owner))
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrVertexNotFound
	}
	return trans.put(vertexMetadataKey(owner, key), value)
}

// DeleteVertexMetadata delete a vertex metadata value
func (trans *Transaction) DeleteVertexMetadata(owner uuid.UUID, key string) error {
	return trans.deleteMetadata(vertexMetadataKey(owner, key))
}

// GetEdgeMetadata get an edge metadata value
func (trans *Transaction) GetEdgeMetadata(owner graph.EdgeKey, key string) (interface{}, error) {
	return trans.getMetadata(edgeMetadataKey(owner, key))
}

// SetEdgeMetadata set an edge metadata value, the edge must exist
func (trans *Transaction) SetEdgeMetadata(owner graph.EdgeKey, key string, value interface{}) error {
	has, err := trans.has(edgeKey(owner))
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrEdgeNotFound
	}
	return trans.put(edgeMetadataKey(owner, key), value)
}

// DeleteEdgeMetadata delete an edge metadata value
func (trans *Transaction) DeleteEdgeMetadata(owner graph.EdgeKey, key string) error {
	return trans.deleteMetadata(edgeMetadataKey(owner, key))
}

// Commit commit the transaction
func (trans *Transaction) Commit() error {
	if trans.done {
		return fmt.Errorf("transaction already finished")
	}
	trans.done = true
	defer trans.txn.Discard()
	if err := trans.txn.Commit(); err != nil {
		return graph.Unexpected(err)
	}
	return nil
}

// Rollback discard the transaction, it is safe to call after Commit
func (trans *Transaction) Rollback() error {
	if trans.done {
		return nil
	}
	trans.done = true
	trans.txn.Discard()
	return nil
}

func (trans *Transaction) get(key string, v interface{}, notFound error) error {
	data, err := trans.txn.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return notFound
	} else if err != nil {
		return graph.Unexpected(err)
	}

	if err := graph.DecodeJSON(data, v); err != nil {
		return graph.Unexpected(fmt.Errorf("decode %s: %w", key, err))
	}
	return nil
}

func (trans *Transaction) has(key string) (bool, error) {
	_, err := trans.txn.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	} else if err != nil {
		return false, graph.Unexpected(err)
	}
	return true, nil
}

func (trans *Transaction) put(key string, v interface{}) error {
	data, err := graph.MarshalJSON(v)
	if err != nil {
		return graph.Unexpected(fmt.Errorf("encode %s: %w", key, err))
	}
	if err := trans.txn.Set(key, data); err != nil {
		return graph.Unexpected(err)
	}
	return nil
}

func (trans *Transaction) delete(key string) error {
	if err := trans.txn.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return graph.Unexpected(err)
	}
	return nil
}

func (trans *Transaction) deletePrefix(prefix string) error {
	keys := []string{}
	err := trans.txn.Iterate(prefix, prefix, func(key string, _ []byte) (bool, error) {
		keys = append(keys, key)
		return true, nil
	})
	if err != nil {
		return graph.Unexpected(err)
	}

	for _, key := range keys {
		if err := trans.delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (trans *Transaction) deleteEdge(key graph.EdgeKey) error {
	if err := trans.deletePrefix(edgeMetadataPrefix(key)); err != nil {
		return err
	}
	if err := trans.delete(reversedKey(key)); err != nil {
		return err
	}
	return trans.delete(edgeKey(key))
}

func (trans *Transaction) getMetadata(key string) (interface{}, error) {
	data, err := trans.txn.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, graph.ErrMetadataNotFound
	} else if err != nil {
		return nil, graph.Unexpected(err)
	}

	value, err := graph.UnmarshalJSON(data)
	if err != nil {
		return nil, graph.Unexpected(fmt.Errorf("decode %s: %w", key, err))
	}
	return value, nil
}

func (trans *Transaction) deleteMetadata(key string) error {
	has, err := trans.has(key)
	if err != nil {
		return err
	}
	if !has {
		return graph.ErrMetadataNotFound
	}
	return trans.delete(key)
}

func (trans *Transaction) count(prefix string) (uint64, error) {
	var n uint64
	err := trans.txn.Iterate(prefix, prefix, func(string, []byte) (bool, error) {
		n++
		return true, nil
	})
	if err != nil {
		return 0, graph.Unexpected(err)
	}
	return n, nil
}

// keyRange collect the edge keys under prefix, limit 0 means no limit
func (trans *Transaction) keyRange(kind string, prefix string, offset uint64, limit uint16, reversed bool) ([]graph.EdgeKey, error) {
	keys := []graph.EdgeKey{}
	var skipped uint64
	err := trans.txn.Iterate(prefix, prefix, func(key string, _ []byte) (bool, error) {
		if skipped < offset {
			skipped++
			return true, nil
		}

		a, t, b, ok := parseEdgeKey(kind, key)
		if !ok {
			return false, fmt.Errorf("malformed edge key %s", key)
		}

		if reversed {
			keys = append(keys, graph.NewEdgeKey(b, t, a))
		} else {
			keys = append(keys, graph.NewEdgeKey(a, t, b))
		}
		return limit == 0 || len(keys) < int(limit), nil
	})
	if err != nil {
		return nil, graph.Unexpected(err)
	}
	return keys, nil
}

func (trans *Transaction) edges(keys []graph.EdgeKey) ([]graph.Edge, error) {
	edges := make([]graph.Edge, 0, len(keys))
	for _, key := range keys {
		edge, err := trans.GetEdge(key)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func (trans *Transaction) timeRange(keys []graph.EdgeKey, high *time.Time, low *time.Time, limit uint16) ([]graph.Edge, error) {
	edges, err := trans.edges(keys)
	if err != nil {
		return nil, err
	}

	// bounds are whole seconds, the same resolution scripts read update_datetime at
	res := []graph.Edge{}
	for _, edge := range edges {
		sec := edge.UpdatedAt.Unix()
		if high != nil && sec > high.Unix() {
			continue
		}
		if low != nil && sec < low.Unix() {
			continue
		}
		res = append(res, edge)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})

	if len(res) > int(limit) {
		res = res[:limit]
	}
	return res, nil
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return graph.Normalize(m).(map[string]interface{})
}
