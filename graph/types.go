package graph

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MaxTypeLength the maximum length of a vertex or edge type
const MaxTypeLength = 255

var typeRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Type the type of a vertex or an edge
type Type string

// NewType validate and create a new type
func NewType(s string) (Type, error) {
	if len(s) > MaxTypeLength {
		return "", &OutOfRangeError{Name: "type"}
	}
	if !typeRe.MatchString(s) {
		return "", fmt.Errorf("invalid type %q: only alphanumeric, underscore and dash are allowed", s)
	}
	return Type(s), nil
}

func (t Type) String() string {
	return string(t)
}

// Weight the weight of an edge, between -1.0 and 1.0 inclusive
type Weight float32

// NewWeight validate and create a new weight
func NewWeight(w float32) (Weight, error) {
	if math.IsNaN(float64(w)) || w < -1.0 || w > 1.0 {
		return 0, &OutOfRangeError{Name: "weight"}
	}
	return Weight(w), nil
}

// Vertex a node of the graph
type Vertex struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// NewVertex create a vertex
func NewVertex(id uuid.UUID, t Type, properties map[string]interface{}) Vertex {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return Vertex{ID: id, Type: t, Properties: properties}
}

// EdgeKey identifies an edge: outbound vertex, type and inbound vertex
type EdgeKey struct {
	OutboundID uuid.UUID `json:"outbound_id"`
	Type       Type      `json:"type"`
	InboundID  uuid.UUID `json:"inbound_id"`
}

// NewEdgeKey create an edge key
func NewEdgeKey(outboundID uuid.UUID, t Type, inboundID uuid.UUID) EdgeKey {
	return EdgeKey{OutboundID: outboundID, Type: t, InboundID: inboundID}
}

func (key EdgeKey) String() string {
	return fmt.Sprintf("%s-[%s]->%s", key.OutboundID, key.Type, key.InboundID)
}

// Edge a directed, typed and weighted link between two vertices
type Edge struct {
	Key        EdgeKey                `json:"key"`
	Weight     Weight                 `json:"weight"`
	Properties map[string]interface{} `json:"properties"`
	UpdatedAt  time.Time              `json:"update_datetime"`
}

// NewEdge create an edge
func NewEdge(key EdgeKey, weight Weight, properties map[string]interface{}) Edge {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return Edge{Key: key, Weight: weight, Properties: properties}
}
