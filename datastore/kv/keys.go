package kv

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
)

const (
	vertexPrefix   = "v/"
	edgePrefix     = "e/"
	reversedPrefix = "r/"
	globalPrefix   = "m/g/"
	accountPrefix  = "m/a/"
	vertexMetaPref = "m/v/"
	edgeMetaPrefix = "m/e/"
)

func vertexKey(id uuid.UUID) string {
	return vertexPrefix + id.String()
}

func edgeKey(key graph.EdgeKey) string {
	return edgePrefix + key.OutboundID.String() + "/" + string(key.Type) + "/" + key.InboundID.String()
}

func edgeTypePrefix(outboundID uuid.UUID, t graph.Type) string {
	return edgePrefix + outboundID.String() + "/" + string(t) + "/"
}

func edgeVertexPrefix(outboundID uuid.UUID) string {
	return edgePrefix + outboundID.String() + "/"
}

func reversedKey(key graph.EdgeKey) string {
	return reversedPrefix + key.InboundID.String() + "/" + string(key.Type) + "/" + key.OutboundID.String()
}

func reversedTypePrefix(inboundID uuid.UUID, t graph.Type) string {
	return reversedPrefix + inboundID.String() + "/" + string(t) + "/"
}

func reversedVertexPrefix(inboundID uuid.UUID) string {
	return reversedPrefix + inboundID.String() + "/"
}

func globalMetadataKey(key string) string {
	return globalPrefix + key
}

func accountMetadataKey(owner uuid.UUID, key string) string {
	return accountPrefix + owner.String() + "/" + key
}

func vertexMetadataPrefix(owner uuid.UUID) string {
	return vertexMetaPref + owner.String() + "/"
}

func vertexMetadataKey(owner uuid.UUID, key string) string {
	return vertexMetadataPrefix(owner) + key
}

func edgeMetadataPrefix(owner graph.EdgeKey) string {
	return edgeMetaPrefix + owner.OutboundID.String() + "/" + string(owner.Type) + "/" + owner.InboundID.String() + "/"
}

func edgeMetadataKey(owner graph.EdgeKey, key string) string {
	return edgeMetadataPrefix(owner) + key
}

// parseEdgeKey parse "<prefix><a>/<type>/<b>" into its parts
func parseEdgeKey(prefix string, key string) (a uuid.UUID, t graph.Type, b uuid.UUID, ok bool) {
	parts := strings.Split(strings.TrimPrefix(key, prefix), "/")
	if len(parts) != 3 {
		return uuid.Nil, "", uuid.Nil, false
	}

	var err error
	a, err = uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", uuid.Nil, false
	}

	b, err = uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, "", uuid.Nil, false
	}

	return a, graph.Type(parts[1]), b, true
}
