package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/yaoapp/braid/graph"
)

const (
	scopeGlobal  = "global"
	scopeAccount = "account"
	scopeVertex  = "vertex"
	scopeEdge    = "edge"
)

// Transaction graph.Transaction over an explicit neo4j transaction
type Transaction struct {
	ctx       context.Context
	cancel    context.CancelFunc
	session   neo4j.SessionWithContext
	tx        neo4j.ExplicitTransaction
	accountID uuid.UUID
	done      bool
}

const edgeColumns = "o.id AS out, e.type AS type, i.id AS in, e.weight AS weight, e.properties AS properties, e.updated_at AS updated_at"

// GetVertex get a vertex by id
func (trans *Transaction) GetVertex(id uuid.UUID) (graph.Vertex, error) {
	records, err := trans.run(
		"MATCH (v:Vertex {id: $id}) RETURN v.id AS id, v.type AS type, v.properties AS properties",
		map[string]any{"id": id.String()},
	)
	if err != nil {
		return graph.Vertex{}, err
	}
	if len(records) == 0 {
		return graph.Vertex{}, graph.ErrVertexNotFound
	}
	return toVertex(records[0])
}

// GetVertexRange list the vertices with an id greater than startID
func (trans *Transaction) GetVertexRange(startID uuid.UUID, limit uint16) ([]graph.Vertex, error) {
	records, err := trans.run(
		"MATCH (v:Vertex) WHERE v.id > $start RETURN v.id AS id, v.type AS type, v.properties AS properties ORDER BY v.id LIMIT $limit",
		map[string]any{"start": startID.String(), "limit": int64(limit)},
	)
	if err != nil {
		return nil, err
	}

	vertices := make([]graph.Vertex, 0, len(records))
	for _, record := range records {
		vertex, err := toVertex(record)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, vertex)
	}
	return vertices, nil
}

// CreateVertex create a new vertex
func (trans *Transaction) CreateVertex(t graph.Type, properties map[string]interface{}) (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, graph.Unexpected(err)
	}

	props, err := encode(properties)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = trans.run(
		"CREATE (v:Vertex {id: $id, type: $type, properties: $properties})",
		map[string]any{"id": id.String(), "type": string(t), "properties": props},
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SetVertex update an existing vertex
func (trans *Transaction) SetVertex(vertex graph.Vertex) error {
	props, err := encode(vertex.Properties)
	if err != nil {
		return err
	}

	records, err := trans.run(
		"MATCH (v:Vertex {id: $id}) SET v.type = $type, v.properties = $properties RETURN v.id AS id",
		map[string]any{"id": vertex.ID.String(), "type": string(vertex.Type), "properties": props},
	)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return graph.ErrVertexNotFound
	}
	return nil
}

// DeleteVertex delete a vertex with its edges and metadata
func (trans *Transaction) DeleteVertex(id uuid.UUID) error {
	records, err := trans.run(
		"MATCH (v:Vertex {id: $id}) DETACH DELETE v RETURN count(*) AS n",
		map[string]any{"id": id.String()},
	)
	if err != nil {
		return err
	}
	if count(records) == 0 {
		return graph.ErrVertexNotFound
	}

	_, err = trans.run(
		"MATCH (m:Metadata) WHERE (m.scope = $vertex AND m.owner = $id) OR (m.scope = $edge AND (m.out = $id OR m.in = $id)) DELETE m",
		map[string]any{"id": id.String(), "vertex": scopeVertex, "edge": scopeEdge},
	)
	return err
}

// GetEdge get an edge by key
func (trans *Transaction) GetEdge(key graph.EdgeKey) (graph.Edge, error) {
	records, err := trans.run(
		"MATCH (o:Vertex {id: $out})-[e:EDGE {type: $type}]->(i:Vertex {id: $in}) RETURN "+edgeColumns,
		edgeParams(key),
	)
	if err != nil {
		return graph.Edge{}, err
	}
	if len(records) == 0 {
		return graph.Edge{}, graph.ErrEdgeNotFound
	}
	return toEdge(records[0])
}

// SetEdge create or update an edge
func (trans *Transaction) SetEdge(edge graph.Edge) error {
	props, err := encode(edge.Properties)
	if err != nil {
		return err
	}

	params := edgeParams(edge.Key)
	params["weight"] = float64(edge.Weight)
	params["properties"] = props
	params["updated_at"] = time.Now().UTC().UnixNano()

	records, err := trans.run(
		"MATCH (o:Vertex {id: $out}), (i:Vertex {id: $in}) "+
			"MERGE (o)-[e:EDGE {type: $type}]->(i) "+
			"SET e.weight = $weight, e.properties = $properties, e.updated_at = $updated_at "+
			"RETURN count(e) AS n",
		params,
	)
	if err != nil {
		return err
	}
	if count(records) == 0 {
		return graph.ErrVertexNotFound
	}
	return nil
}

// DeleteEdge delete an edge and its metadata
func (trans *Transaction) DeleteEdge(key graph.EdgeKey) error {
	records, err := trans.run(
		"MATCH (o:Vertex {id: $out})-[e:EDGE {type: $type}]->(i:Vertex {id: $in}) DELETE e RETURN count(*) AS n",
		edgeParams(key),
	)
	if err != nil {
		return err
	}
	if count(records) == 0 {
		return graph.ErrEdgeNotFound
	}

	_, err = trans.run(
		"MATCH (m:Metadata {scope: $scope, owner: $owner}) DELETE m",
		map[string]any{"scope": scopeEdge, "owner": edgeOwner(key)},
	)
	return err
}

// GetEdgeCount count the outbound edges of the given type
func (trans *Transaction) GetEdgeCount(outboundID uuid.UUID, t graph.Type) (uint64, error) {
	records, err := trans.run(
		"MATCH (:Vertex {id: $id})-[e:EDGE {type: $type}]->(:Vertex) RETURN count(e) AS n",
		map[string]any{"id": outboundID.String(), "type": string(t)},
	)
	if err != nil {
		return 0, err
	}
	return uint64(count(records)), nil
}

// GetEdgeRange list the outbound edges of the given type
func (trans *Transaction) GetEdgeRange(outboundID uuid.UUID, t graph.Type, offset uint64, limit uint16) ([]graph.Edge, error) {
	return trans.edges(
		"MATCH (o:Vertex {id: $id})-[e:EDGE {type: $type}]->(i:Vertex) RETURN "+edgeColumns+" ORDER BY i.id SKIP $offset LIMIT $limit",
		rangeParams(outboundID, t, offset, limit),
	)
}

// GetEdgeTimeRange list the outbound edges updated between low and high, newest first
func (trans *Transaction) GetEdgeTimeRange(outboundID uuid.UUID, t graph.Type, high *time.Time, low *time.Time, limit uint16) ([]graph.Edge, error) {
	return trans.edges(
		"MATCH (o:Vertex {id: $id})-[e:EDGE {type: $type}]->(i:Vertex) "+timeFilter+" RETURN "+edgeColumns+" ORDER BY e.updated_at DESC LIMIT $limit",
		timeParams(outboundID, t, high, low, limit),
	)
}

// GetReversedEdgeCount count the inbound edges of the given type
func (trans *Transaction) GetReversedEdgeCount(inboundID uuid.UUID, t graph.Type) (uint64, error) {
	records, err := trans.run(
		"MATCH (:Vertex)-[e:EDGE {type: $type}]->(:Vertex {id: $id}) RETURN count(e) AS n",
		map[string]any{"id": inboundID.String(), "type": string(t)},
	)
	if err != nil {
		return 0, err
	}
	return uint64(count(records)), nil
}

// GetReversedEdgeRange list the inbound edges of the given type
func (trans *Transaction) GetReversedEdgeRange(inboundID uuid.UUID, t graph.Type, offset uint64, limit uint16) ([]graph.Edge, error) {
	return trans.edges(
		"MATCH (o:Vertex)-[e:EDGE {type: $type}]->(i:Vertex {id: $id}) RETURN "+edgeColumns+" ORDER BY o.id SKIP $offset LIMIT $limit",
		rangeParams(inboundID, t, offset, limit),
	)
}

// GetReversedEdgeTimeRange list the inbound edges updated between low and high, newest first
func (trans *Transaction) GetReversedEdgeTimeRange(inboundID uuid.UUID, t graph.Type, high *time.Time, low *time.Time, limit uint16) ([]graph.Edge, error) {
	return trans.edges(
		"MATCH (o:Vertex)-[e:EDGE {type: $type}]->(i:Vertex {id: $id}) "+timeFilter+" RETURN "+edgeColumns+" ORDER BY e.updated_at DESC LIMIT $limit",
		timeParams(inboundID, t, high, low, limit),
	)
}

// GetGlobalMetadata get a global metadata value
func (trans *Transaction) GetGlobalMetadata(key string) (interface{}, error) {
	return trans.getMetadata(scopeGlobal, "", key)
}

// SetGlobalMetadata set a global metadata value
func (trans *Transaction) SetGlobalMetadata(key string, value interface{}) error {
	return trans.setMetadata(scopeGlobal, "", key, value, nil)
}

// DeleteGlobalMetadata delete a global metadata value
func (trans *Transaction) DeleteGlobalMetadata(key string) error {
	return trans.deleteMetadata(scopeGlobal, "", key)
}

// GetAccountMetadata get an account metadata value
func (trans *Transaction) GetAccountMetadata(owner uuid.UUID, key string) (interface{}, error) {
	return trans.getMetadata(scopeAccount, owner.String(), key)
}

// SetAccountMetadata set an account metadata value
func (trans *Transaction) SetAccountMetadata(owner uuid.UUID, key string, value interface{}) error {
	return trans.setMetadata(scopeAccount, owner.String(), key, value, nil)
}

// DeleteAccountMetadata delete an account metadata value
func (trans *Transaction) DeleteAccountMetadata(owner uuid.UUID, key string) error {
	return trans.deleteMetadata(scopeAccount, owner.String(), key)
}

// GetVertexMetadata get a vertex metadata value
func (trans *Transaction) GetVertexMetadata(owner uuid.UUID, key string) (interface{}, error) {
	return trans.getMetadata(scopeVertex, owner.String(), key)
}

// SetVertexMetadata set a vertex metadata value, the vertex must exist
func (trans *Transaction) SetVertexMetadata(owner uuid.UUID, key string, value interface{}) error {
	if _, err := trans.GetVertex(owner); err != nil {
		return err
	}
	return trans.setMetadata(scopeVertex, owner.String(), key, value, nil)
}

// DeleteVertexMetadata delete a vertex metadata value
func (trans *Transaction) DeleteVertexMetadata(owner uuid.UUID, key string) error {
	return trans.deleteMetadata(scopeVertex, owner.String(), key)
}

// GetEdgeMetadata get an edge metadata value
func (trans *Transaction) GetEdgeMetadata(owner graph.EdgeKey, key string) (interface{}, error) {
	return trans.getMetadata(scopeEdge, edgeOwner(owner), key)
}

// SetEdgeMetadata set an edge metadata value, the edge must exist
func (trans *Transaction) SetEdgeMetadata(owner graph.EdgeKey, key string, value interface{}) error {
	if _, err := trans.GetEdge(owner); err != nil {
		return err
	}
	return trans.setMetadata(scopeEdge, edgeOwner(owner), key, value, map[string]any{
		"out": owner.OutboundID.String(),
		"in":  owner.InboundID.String(),
	})
}

// DeleteEdgeMetadata delete an edge metadata value
func (trans *Transaction) DeleteEdgeMetadata(owner graph.EdgeKey, key string) error {
	return trans.deleteMetadata(scopeEdge, edgeOwner(owner), key)
}

// Commit commit the transaction and close the session
func (trans *Transaction) Commit() error {
	if trans.done {
		return fmt.Errorf("transaction already finished")
	}
	trans.done = true
	defer trans.close()

	if err := trans.tx.Commit(trans.ctx); err != nil {
		return graph.Unexpected(err)
	}
	return nil
}

// Rollback roll back the transaction, it is safe to call after Commit
func (trans *Transaction) Rollback() error {
	if trans.done {
		return nil
	}
	trans.done = true
	defer trans.close()

	if err := trans.tx.Rollback(trans.ctx); err != nil {
		return graph.Unexpected(err)
	}
	return nil
}

func (trans *Transaction) close() {
	trans.tx.Close(trans.ctx)
	trans.session.Close(trans.ctx)
	trans.cancel()
}

func (trans *Transaction) run(query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := trans.tx.Run(trans.ctx, query, params)
	if err != nil {
		return nil, graph.Unexpected(err)
	}
	records, err := result.Collect(trans.ctx)
	if err != nil {
		return nil, graph.Unexpected(err)
	}
	return records, nil
}

func (trans *Transaction) edges(query string, params map[string]any) ([]graph.Edge, error) {
	records, err := trans.run(query, params)
	if err != nil {
		return nil, err
	}

	edges := make([]graph.Edge, 0, len(records))
	for _, record := range records {
		edge, err := toEdge(record)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func (trans *Transaction) getMetadata(scope, owner, key string) (interface{}, error) {
	records, err := trans.run(
		"MATCH (m:Metadata {scope: $scope, owner: $owner, key: $key}) RETURN m.value AS value",
		map[string]any{"scope": scope, "owner": owner, "key": key},
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, graph.ErrMetadataNotFound
	}

	raw, _ := records[0].Get("value")
	data, ok := raw.(string)
	if !ok {
		return nil, graph.Unexpected(fmt.Errorf("malformed metadata %s/%s/%s", scope, owner, key))
	}

	value, err := graph.UnmarshalJSON([]byte(data))
	if err != nil {
		return nil, graph.Unexpected(err)
	}
	return value, nil
}

func (trans *Transaction) setMetadata(scope, owner, key string, value interface{}, extra map[string]any) error {
	data, err := graph.MarshalJSON(value)
	if err != nil {
		return graph.Unexpected(err)
	}

	params := map[string]any{"scope": scope, "owner": owner, "key": key, "value": string(data), "extra": map[string]any{}}
	if extra != nil {
		params["extra"] = extra
	}

	_, err = trans.run(
		"MERGE (m:Metadata {scope: $scope, owner: $owner, key: $key}) SET m.value = $value SET m += $extra",
		params,
	)
	return err
}

func (trans *Transaction) deleteMetadata(scope, owner, key string) error {
	records, err := trans.run(
		"MATCH (m:Metadata {scope: $scope, owner: $owner, key: $key}) DELETE m RETURN count(*) AS n",
		map[string]any{"scope": scope, "owner": owner, "key": key},
	)
	if err != nil {
		return err
	}
	if count(records) == 0 {
		return graph.ErrMetadataNotFound
	}
	return nil
}

// $high is exclusive, it is the nanosecond after the last one of the high second
const timeFilter = "WHERE ($high IS NULL OR e.updated_at < $high) AND ($low IS NULL OR e.updated_at >= $low)"

func edgeOwner(key graph.EdgeKey) string {
	return key.OutboundID.String() + "/" + string(key.Type) + "/" + key.InboundID.String()
}

func edgeParams(key graph.EdgeKey) map[string]any {
	return map[string]any{
		"out":  key.OutboundID.String(),
		"type": string(key.Type),
		"in":   key.InboundID.String(),
	}
}

func rangeParams(id uuid.UUID, t graph.Type, offset uint64, limit uint16) map[string]any {
	return map[string]any{
		"id":     id.String(),
		"type":   string(t),
		"offset": int64(offset),
		"limit":  int64(limit),
	}
}

func timeParams(id uuid.UUID, t graph.Type, high *time.Time, low *time.Time, limit uint16) map[string]any {
	params := map[string]any{
		"id":    id.String(),
		"type":  string(t),
		"high":  nil,
		"low":   nil,
		"limit": int64(limit),
	}
	if high != nil {
		params["high"] = (high.Unix() + 1) * int64(time.Second)
	}
	if low != nil {
		params["low"] = low.Unix() * int64(time.Second)
	}
	return params
}

func count(records []*neo4j.Record) int64 {
	if len(records) == 0 {
		return 0
	}
	n, _ := records[0].Get("n")
	if v, ok := n.(int64); ok {
		return v
	}
	return 0
}

func encode(properties map[string]interface{}) (string, error) {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	data, err := graph.MarshalJSON(properties)
	if err != nil {
		return "", graph.Unexpected(err)
	}
	return string(data), nil
}

func decode(raw any) (map[string]interface{}, error) {
	data, ok := raw.(string)
	if !ok || data == "" {
		return map[string]interface{}{}, nil
	}

	value, err := graph.UnmarshalJSON([]byte(data))
	if err != nil {
		return nil, graph.Unexpected(err)
	}

	properties, ok := value.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}, nil
	}
	return properties, nil
}

func toVertex(record *neo4j.Record) (graph.Vertex, error) {
	rawID, _ := record.Get("id")
	rawType, _ := record.Get("type")
	rawProps, _ := record.Get("properties")

	id, err := uuid.Parse(fmt.Sprintf("%v", rawID))
	if err != nil {
		return graph.Vertex{}, graph.Unexpected(err)
	}

	properties, err := decode(rawProps)
	if err != nil {
		return graph.Vertex{}, err
	}

	return graph.NewVertex(id, graph.Type(fmt.Sprintf("%v", rawType)), properties), nil
}

func toEdge(record *neo4j.Record) (graph.Edge, error) {
	rawOut, _ := record.Get("out")
	rawType, _ := record.Get("type")
	rawIn, _ := record.Get("in")
	rawWeight, _ := record.Get("weight")
	rawProps, _ := record.Get("properties")
	rawUpdated, _ := record.Get("updated_at")

	out, err := uuid.Parse(fmt.Sprintf("%v", rawOut))
	if err != nil {
		return graph.Edge{}, graph.Unexpected(err)
	}

	in, err := uuid.Parse(fmt.Sprintf("%v", rawIn))
	if err != nil {
		return graph.Edge{}, graph.Unexpected(err)
	}

	properties, err := decode(rawProps)
	if err != nil {
		return graph.Edge{}, err
	}

	weight, _ := rawWeight.(float64)
	edge := graph.NewEdge(graph.NewEdgeKey(out, graph.Type(fmt.Sprintf("%v", rawType)), in), graph.Weight(weight), properties)
	if updated, ok := rawUpdated.(int64); ok {
		edge.UpdatedAt = time.Unix(0, updated).UTC()
	}
	return edge, nil
}
