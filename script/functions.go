package script

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/exception"
	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

// Functions the host functions registered in every session
var Functions = []Function{

	// Vertices
	{Name: "get_vertex", Args: []Extractor{ID}, Returns: 1, Handler: getVertex},
	{Name: "create_vertex", Args: []Extractor{Type, Properties}, Returns: 1, Handler: createVertex},
	{Name: "set_vertex", Args: []Extractor{ID, Type, Properties}, Handler: setVertex},
	{Name: "delete_vertex", Args: []Extractor{ID}, Handler: deleteVertex},
	{Name: "get_vertex_range", Args: []Extractor{OptionalID, Limit}, Returns: 1, Handler: getVertexRange},

	// Edges
	{Name: "get_edge", Args: []Extractor{ID, Type, ID}, Returns: 1, Handler: getEdge},
	{Name: "set_edge", Args: []Extractor{ID, Type, ID, Weight, Properties}, Handler: setEdge},
	{Name: "delete_edge", Args: []Extractor{ID, Type, ID}, Handler: deleteEdge},
	{Name: "get_edge_count", Args: []Extractor{ID, Type}, Returns: 1, Handler: getEdgeCount},
	{Name: "get_edge_range", Args: []Extractor{ID, Type, Offset, Limit}, Returns: 1, Handler: getEdgeRange},
	{Name: "get_edge_time_range", Args: []Extractor{ID, Type, OptionalTime, OptionalTime, Limit}, Returns: 1, Handler: getEdgeTimeRange},
	{Name: "get_reversed_edge_count", Args: []Extractor{ID, Type}, Returns: 1, Handler: getReversedEdgeCount},
	{Name: "get_reversed_edge_range", Args: []Extractor{ID, Type, Offset, Limit}, Returns: 1, Handler: getReversedEdgeRange},
	{Name: "get_reversed_edge_time_range", Args: []Extractor{ID, Type, OptionalTime, OptionalTime, Limit}, Returns: 1, Handler: getReversedEdgeTimeRange},

	// Metadata
	{Name: "get_global_metadata", Args: []Extractor{String}, Returns: 1, Handler: getGlobalMetadata},
	{Name: "set_global_metadata", Args: []Extractor{String, Value}, Handler: setGlobalMetadata},
	{Name: "delete_global_metadata", Args: []Extractor{String}, Handler: deleteGlobalMetadata},
	{Name: "get_account_metadata", Args: []Extractor{ID, String}, Returns: 1, Handler: getAccountMetadata},
	{Name: "set_account_metadata", Args: []Extractor{ID, String, Value}, Handler: setAccountMetadata},
	{Name: "delete_account_metadata", Args: []Extractor{ID, String}, Handler: deleteAccountMetadata},
	{Name: "get_vertex_metadata", Args: []Extractor{ID, String}, Returns: 1, Handler: getVertexMetadata},
	{Name: "set_vertex_metadata", Args: []Extractor{ID, String, Value}, Handler: setVertexMetadata},
	{Name: "delete_vertex_metadata", Args: []Extractor{ID, String}, Handler: deleteVertexMetadata},
	{Name: "get_edge_metadata", Args: []Extractor{ID, Type, ID, String}, Returns: 1, Handler: getEdgeMetadata},
	{Name: "set_edge_metadata", Args: []Extractor{ID, Type, ID, String, Value}, Handler: setEdgeMetadata},
	{Name: "delete_edge_metadata", Args: []Extractor{ID, Type, ID, String}, Handler: deleteEdgeMetadata},
}

// register install the host functions as globals of the session
func (s *session) register(functions []Function) {
	for _, fn := range functions {
		s.L.SetGlobal(fn.Name, s.L.NewFunction(s.wrap(fn)))
	}
}

// wrap build the Lua function of a host function. Errors are raised
// after invoke returned so the raise never unwinds through the recover.
func (s *session) wrap(fn Function) lua.LGFunction {
	return func(L *lua.LState) int {
		value, err := s.invoke(L, fn)
		if err != nil {
			s.raise(L, fn, err)
			return 0
		}

		if fn.Returns == 0 {
			return 0
		}
		L.Push(value)
		return 1
	}
}

func (s *session) invoke(L *lua.LState, fn Function) (value lua.LValue, err error) {
	defer func() {
		recovered := recover()

		// interpreter raises (a registry overflow while pushing a value) unwind as they are
		if _, ok := recovered.(*lua.ApiError); ok {
			panic(recovered)
		}

		if r := exception.Catch(recovered); r != nil {
			log.Error("[script] %s panicked: %s", fn.Name, r.Error())
			value, err = lua.LNil, r
		}
	}()

	trans, err := s.transaction()
	if err != nil {
		return lua.LNil, err
	}

	args := make([]interface{}, len(fn.Args))
	for i, extractor := range fn.Args {
		arg, err := extractor.Extract(L, i+1, s.maxDepth)
		if err != nil {
			return lua.LNil, err
		}
		args[i] = arg
	}

	call := &Call{
		Name:      fn.Name,
		Args:      args,
		Trans:     trans,
		AccountID: s.accountID,
		L:         L,
		maxDepth:  s.maxDepth,
	}

	value, err = fn.Handler(call)
	if err != nil {
		return lua.LNil, err
	}

	if value == nil {
		value = lua.LNil
	}
	return value, nil
}

// raise report the failure through the interpreter error channel
func (s *session) raise(L *lua.LState, fn Function, err error) {
	message := err.Error()

	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		message = fmt.Sprintf("bad argument #%d to %s (%s)", argErr.Position, fn.Name, argErr.Message)
	}

	s.failure = err
	s.raised = message
	log.Trace("[script] session %d: %s failed: %s", s.tag, fn.Name, message)
	L.RaiseError("%s", message)
}

// Vertices

func getVertex(call *Call) (lua.LValue, error) {
	vertex, err := call.Trans.GetVertex(call.ArgsID(0))
	if err != nil {
		return nil, err
	}
	return call.Native(vertexValue(vertex))
}

func createVertex(call *Call) (lua.LValue, error) {
	id, err := call.Trans.CreateVertex(call.ArgsType(0), call.ArgsMap(1))
	if err != nil {
		return nil, err
	}
	return lua.LString(id.String()), nil
}

func setVertex(call *Call) (lua.LValue, error) {
	vertex := graph.NewVertex(call.ArgsID(0), call.ArgsType(1), call.ArgsMap(2))
	return nil, call.Trans.SetVertex(vertex)
}

func deleteVertex(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteVertex(call.ArgsID(0))
}

func getVertexRange(call *Call) (lua.LValue, error) {
	vertices, err := call.Trans.GetVertexRange(call.ArgsID(0), call.ArgsLimit(1))
	if err != nil {
		return nil, err
	}

	list := make([]interface{}, 0, len(vertices))
	for _, vertex := range vertices {
		list = append(list, vertexValue(vertex))
	}
	return call.Native(list)
}

// Edges

func getEdge(call *Call) (lua.LValue, error) {
	edge, err := call.Trans.GetEdge(call.ArgsEdgeKey(0))
	if err != nil {
		return nil, err
	}
	return call.Native(edgeValue(edge))
}

func setEdge(call *Call) (lua.LValue, error) {
	edge := graph.NewEdge(call.ArgsEdgeKey(0), call.ArgsWeight(3), call.ArgsMap(4))
	return nil, call.Trans.SetEdge(edge)
}

func deleteEdge(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteEdge(call.ArgsEdgeKey(0))
}

func getEdgeCount(call *Call) (lua.LValue, error) {
	n, err := call.Trans.GetEdgeCount(call.ArgsID(0), call.ArgsType(1))
	if err != nil {
		return nil, err
	}
	return lua.LNumber(n), nil
}

func getEdgeRange(call *Call) (lua.LValue, error) {
	edges, err := call.Trans.GetEdgeRange(call.ArgsID(0), call.ArgsType(1), call.ArgsOffset(2), call.ArgsLimit(3))
	if err != nil {
		return nil, err
	}
	return call.Native(edgeList(edges))
}

func getEdgeTimeRange(call *Call) (lua.LValue, error) {
	edges, err := call.Trans.GetEdgeTimeRange(call.ArgsID(0), call.ArgsType(1), call.ArgsTime(2), call.ArgsTime(3), call.ArgsLimit(4))
	if err != nil {
		return nil, err
	}
	return call.Native(edgeList(edges))
}

func getReversedEdgeCount(call *Call) (lua.LValue, error) {
	n, err := call.Trans.GetReversedEdgeCount(call.ArgsID(0), call.ArgsType(1))
	if err != nil {
		return nil, err
	}
	return lua.LNumber(n), nil
}

func getReversedEdgeRange(call *Call) (lua.LValue, error) {
	edges, err := call.Trans.GetReversedEdgeRange(call.ArgsID(0), call.ArgsType(1), call.ArgsOffset(2), call.ArgsLimit(3))
	if err != nil {
		return nil, err
	}
	return call.Native(edgeList(edges))
}

func getReversedEdgeTimeRange(call *Call) (lua.LValue, error) {
	edges, err := call.Trans.GetReversedEdgeTimeRange(call.ArgsID(0), call.ArgsType(1), call.ArgsTime(2), call.ArgsTime(3), call.ArgsLimit(4))
	if err != nil {
		return nil, err
	}
	return call.Native(edgeList(edges))
}

// Metadata

func getGlobalMetadata(call *Call) (lua.LValue, error) {
	value, err := call.Trans.GetGlobalMetadata(call.ArgsString(0))
	if err != nil {
		return nil, err
	}
	return call.Native(value)
}

func setGlobalMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.SetGlobalMetadata(call.ArgsString(0), call.ArgsValue(1))
}

func deleteGlobalMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteGlobalMetadata(call.ArgsString(0))
}

func getAccountMetadata(call *Call) (lua.LValue, error) {
	value, err := call.Trans.GetAccountMetadata(call.ArgsID(0), call.ArgsString(1))
	if err != nil {
		return nil, err
	}
	return call.Native(value)
}

func setAccountMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.SetAccountMetadata(call.ArgsID(0), call.ArgsString(1), call.ArgsValue(2))
}

func deleteAccountMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteAccountMetadata(call.ArgsID(0), call.ArgsString(1))
}

func getVertexMetadata(call *Call) (lua.LValue, error) {
	value, err := call.Trans.GetVertexMetadata(call.ArgsID(0), call.ArgsString(1))
	if err != nil {
		return nil, err
	}
	return call.Native(value)
}

func setVertexMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.SetVertexMetadata(call.ArgsID(0), call.ArgsString(1), call.ArgsValue(2))
}

func deleteVertexMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteVertexMetadata(call.ArgsID(0), call.ArgsString(1))
}

func getEdgeMetadata(call *Call) (lua.LValue, error) {
	value, err := call.Trans.GetEdgeMetadata(call.ArgsEdgeKey(0), call.ArgsString(3))
	if err != nil {
		return nil, err
	}
	return call.Native(value)
}

func setEdgeMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.SetEdgeMetadata(call.ArgsEdgeKey(0), call.ArgsString(3), call.ArgsValue(4))
}

func deleteEdgeMetadata(call *Call) (lua.LValue, error) {
	return nil, call.Trans.DeleteEdgeMetadata(call.ArgsEdgeKey(0), call.ArgsString(3))
}

// vertexValue the script-facing shape of a vertex
func vertexValue(vertex graph.Vertex) map[string]interface{} {
	return map[string]interface{}{
		"id":         vertex.ID.String(),
		"type":       string(vertex.Type),
		"properties": vertex.Properties,
	}
}

// edgeValue the script-facing shape of an edge, update_datetime is Unix seconds as a string
func edgeValue(edge graph.Edge) map[string]interface{} {
	return map[string]interface{}{
		"outbound_id":     edge.Key.OutboundID.String(),
		"type":            string(edge.Key.Type),
		"inbound_id":      edge.Key.InboundID.String(),
		"weight":          weightValue(edge.Weight),
		"properties":      edge.Properties,
		"update_datetime": strconv.FormatInt(edge.UpdatedAt.Unix(), 10),
	}
}

// weightValue widen the float32 weight without exposing its binary noise (0.3, not 0.30000001192092896)
func weightValue(w graph.Weight) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(w), 'f', -1, 32), 64)
	if err != nil {
		return float64(w)
	}
	return f
}

func edgeList(edges []graph.Edge) []interface{} {
	list := make([]interface{}, 0, len(edges))
	for _, edge := range edges {
		list = append(list, edgeValue(edge))
	}
	return list
}
