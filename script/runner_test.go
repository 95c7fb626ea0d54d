package script

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaoapp/braid/datastore/buntdb"
	"github.com/yaoapp/braid/graph"
)

var testAccountID = uuid.MustParse("5f3a7d3c-1b2e-4c4d-8e9f-0a1b2c3d4e5f")

func TestRunReturn(t *testing.T) {
	engine, store := prepare(t, Option{})

	value, err := run(t, engine, store, `return 1 + 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, value)

	value, err = run(t, engine, store, `return arg`, int64(1)<<60)
	require.NoError(t, err)
	assert.Equal(t, "1152921504606846976", value)

	value, err = run(t, engine, store, `return account_id`, nil)
	require.NoError(t, err)
	assert.Equal(t, testAccountID.String(), value)

	value, err = run(t, engine, store, `local x = 1`, nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = run(t, engine, store, `return "first", "second"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	value, err = run(t, engine, store, `return {10, 20, name = "list"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"1": 10.0, "2": 20.0, "name": "list"}, value)

	arg, err := DecodeJSON([]byte(`{"ids":[1,2],"label":"x"}`))
	require.NoError(t, err)
	value, err = run(t, engine, store, `return {first = arg.ids[1], label = arg.label, kind = type(arg.ids[2])}`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"first": "1", "label": "x", "kind": "string"}, value)
}

func TestRunDefault(t *testing.T) {
	_, store := prepare(t, Option{})
	trans, err := store.Transaction(testAccountID)
	require.NoError(t, err)

	value, err := Run(trans, testAccountID, `return "ok"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.NotNil(t, Default().Cache())
}

func TestRunCommit(t *testing.T) {
	engine, store := prepare(t, Option{})

	id, err := run(t, engine, store, `return create_vertex("user", {name = "alice", age = 30})`, nil)
	require.NoError(t, err)
	require.IsType(t, "", id)

	value, err := run(t, engine, store, `return get_vertex(arg)`, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"id":         id,
		"type":       "user",
		"properties": map[string]interface{}{"name": "alice", "age": 30.0},
	}, value)

	_, err = run(t, engine, store, `set_vertex(arg, "admin", {name = "alice"})`, id)
	require.NoError(t, err)

	value, err = run(t, engine, store, `return get_vertex(arg).type`, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", value)

	_, err = run(t, engine, store, `delete_vertex(arg)`, id)
	require.NoError(t, err)

	_, err = run(t, engine, store, `return get_vertex(arg)`, id)
	assert.True(t, errors.Is(err, graph.ErrVertexNotFound))
}

func TestRunVertexRange(t *testing.T) {
	engine, store := prepare(t, Option{})

	_, err := run(t, engine, store, `for i = 1, 5 do create_vertex("item", {n = i}) end`, nil)
	require.NoError(t, err)

	value, err := run(t, engine, store, `
		local all = get_vertex_range("", 100)
		local page = get_vertex_range(all[2].id, 2)
		return {total = #all, page = #page, next = page[1].id == all[3].id}
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"total": 5.0, "page": 2.0, "next": true}, value)
}

func TestRunSyntaxError(t *testing.T) {
	engine, store := prepare(t, Option{})

	_, err := run(t, engine, store, `create_vertex("user", nil) return +`, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSyntax))

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, StageLoad, scriptErr.Stage)
	assert.Contains(t, err.Error(), "syntax error")

	assert.Equal(t, 0.0, count(t, engine, store))
}

func TestRunArgumentError(t *testing.T) {
	engine, store := prepare(t, Option{})

	_, err := run(t, engine, store, `
		create_vertex("user", nil)
		delete_vertex(-1)
	`, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRuntime))
	assert.Contains(t, err.Error(), "bad argument #1 to delete_vertex")

	// the vertex created before the failure was rolled back
	assert.Equal(t, 0.0, count(t, engine, store))
}

func TestRunHostError(t *testing.T) {
	engine, store := prepare(t, Option{})

	_, err := run(t, engine, store, `return get_vertex(arg)`, uuid.New().String())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRuntime))
	assert.True(t, errors.Is(err, graph.ErrVertexNotFound))

	value, err := run(t, engine, store, `
		local ok = pcall(get_vertex, arg)
		create_vertex("user", nil)
		return ok
	`, uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, false, value)
	assert.Equal(t, 1.0, count(t, engine, store))
}

func TestRunEdges(t *testing.T) {
	engine, store := prepare(t, Option{})
	ids := vertices(t, engine, store, 2)
	arg := map[string]interface{}{"a": ids[0], "b": ids[1]}

	_, err := run(t, engine, store, `set_edge(arg.a, "follows", arg.b, 0.3, {since = "2020"})`, arg)
	require.NoError(t, err)

	value, err := run(t, engine, store, `return get_edge(arg.a, "follows", arg.b)`, arg)
	require.NoError(t, err)
	edge := value.(map[string]interface{})
	assert.Equal(t, ids[0], edge["outbound_id"])
	assert.Equal(t, "follows", edge["type"])
	assert.Equal(t, ids[1], edge["inbound_id"])
	assert.Equal(t, 0.3, edge["weight"])
	assert.Equal(t, map[string]interface{}{"since": "2020"}, edge["properties"])
	assert.IsType(t, "", edge["update_datetime"])

	value, err = run(t, engine, store, `
		return {
			count = get_edge_count(arg.a, "follows"),
			reversed = get_reversed_edge_count(arg.b, "follows"),
			range = #get_edge_range(arg.a, "follows", 0, 100000),
			reversed_range = #get_reversed_edge_range(arg.b, "follows", 0, 10),
			skipped = #get_edge_range(arg.a, "follows", 1, 10),
			other = get_edge_count(arg.a, "likes")
		}
	`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"count":          1.0,
		"reversed":       1.0,
		"range":          1.0,
		"reversed_range": 1.0,
		"skipped":        0.0,
		"other":          0.0,
	}, value)

	_, err = run(t, engine, store, `return get_edge_range(arg.a, "follows", -1, 10)`, arg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad argument #3 to get_edge_range")

	_, err = run(t, engine, store, `delete_edge(arg.a, "follows", arg.b)`, arg)
	require.NoError(t, err)

	value, err = run(t, engine, store, `return get_edge_count(arg.a, "follows")`, arg)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestRunEdgeWeight(t *testing.T) {
	engine, store := prepare(t, Option{})
	ids := vertices(t, engine, store, 2)
	arg := map[string]interface{}{"a": ids[0], "b": ids[1]}

	_, err := run(t, engine, store, `set_edge(arg.a, "follows", arg.b, 2.0, nil)`, arg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad argument #4 to set_edge")

	value, err := run(t, engine, store, `return pcall(get_edge, arg.a, "follows", arg.b)`, arg)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

func TestRunEdgeTimeRange(t *testing.T) {
	engine, store := prepare(t, Option{})
	ids := vertices(t, engine, store, 3)
	arg := map[string]interface{}{"a": ids[0], "b": ids[1], "c": ids[2]}

	_, err := run(t, engine, store, `
		set_edge(arg.a, "follows", arg.b, 1, nil)
		set_edge(arg.a, "follows", arg.c, -1, nil)
	`, arg)
	require.NoError(t, err)

	value, err := run(t, engine, store, `
		return {
			all = #get_edge_time_range(arg.a, "follows", "", "", 10),
			limited = #get_edge_time_range(arg.a, "follows", "", "", 1),
			past = #get_edge_time_range(arg.a, "follows", "1", "", 10),
			future = #get_edge_time_range(arg.a, "follows", "", "4102444800", 10),
			reversed = #get_reversed_edge_time_range(arg.b, "follows", "", "", 10)
		}
	`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"all":      2.0,
		"limited":  1.0,
		"past":     0.0,
		"future":   0.0,
		"reversed": 1.0,
	}, value)

	value, err = run(t, engine, store, `
		local edge = get_edge(arg.a, "follows", arg.b)
		local found = {}
		for _, e in ipairs(get_edge_time_range(arg.a, "follows", edge.update_datetime, edge.update_datetime, 10)) do
			found[e.inbound_id] = true
		end
		local reversed = get_reversed_edge_time_range(arg.b, "follows", edge.update_datetime, edge.update_datetime, 10)
		return {own = found[arg.b] == true, reversed = #reversed}
	`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"own": true, "reversed": 1.0}, value)

	_, err = run(t, engine, store, `return get_edge_time_range(arg.a, "follows", "soon", "", 10)`, arg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad argument #3 to get_edge_time_range")
}

func TestRunMetadata(t *testing.T) {
	engine, store := prepare(t, Option{})
	ids := vertices(t, engine, store, 2)
	arg := map[string]interface{}{"a": ids[0], "b": ids[1]}

	value, err := run(t, engine, store, `
		set_global_metadata("settings", {theme = "dark", size = 2})
		set_account_metadata(account_id, "quota", 10)
		set_vertex_metadata(arg.a, "seen", true)
		set_edge(arg.a, "follows", arg.b, 0, nil)
		set_edge_metadata(arg.a, "follows", arg.b, "note", "hi")
		return {
			global = get_global_metadata("settings"),
			account = get_account_metadata(account_id, "quota"),
			vertex = get_vertex_metadata(arg.a, "seen"),
			edge = get_edge_metadata(arg.a, "follows", arg.b, "note")
		}
	`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"global":  map[string]interface{}{"theme": "dark", "size": 2.0},
		"account": 10.0,
		"vertex":  true,
		"edge":    "hi",
	}, value)

	_, err = run(t, engine, store, `
		delete_global_metadata("settings")
		delete_account_metadata(account_id, "quota")
		delete_edge_metadata(arg.a, "follows", arg.b, "note")
		delete_vertex(arg.a)
	`, arg)
	require.NoError(t, err)

	value, err = run(t, engine, store, `
		return {
			global = pcall(get_global_metadata, "settings"),
			account = pcall(get_account_metadata, account_id, "quota"),
			vertex = pcall(get_vertex_metadata, arg.a, "seen")
		}
	`, arg)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"global": false, "account": false, "vertex": false}, value)

	_, err = run(t, engine, store, `delete_global_metadata("missing")`, nil)
	assert.True(t, errors.Is(err, graph.ErrMetadataNotFound))

	_, err = run(t, engine, store, `set_vertex_metadata(arg, "k", 1)`, uuid.New().String())
	assert.True(t, errors.Is(err, graph.ErrVertexNotFound))
}

func TestRunCorruptedTransaction(t *testing.T) {
	engine, store := prepare(t, Option{})

	for _, source := range []string{
		`trans = nil; return get_vertex_range("", 1)`,
		`trans = {}; return get_vertex_range("", 1)`,
		`trans = "transaction"; return get_vertex_range("", 1)`,
	} {
		_, err := run(t, engine, store, source, nil)
		require.Error(t, err, source)
		assert.True(t, IsKind(err, KindRuntime), source)
		assert.True(t, errors.Is(err, ErrCorruptedTransaction), source)
	}

	_, err := run(t, engine, store, `setmetatable(trans, {})`, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRuntime))

	value, err := run(t, engine, store, `return {name = tostring(trans), mt = getmetatable(trans)}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "transaction", "mt": "locked"}, value)
}

func TestRunResultError(t *testing.T) {
	engine, store := prepare(t, Option{})

	for _, source := range []string{
		`create_vertex("user", nil); local t = {}; t.self = t; return t`,
		`create_vertex("user", nil); return function() end`,
		`create_vertex("user", nil); return 0/0`,
	} {
		_, err := run(t, engine, store, source, nil)
		require.Error(t, err, source)

		var scriptErr *ScriptError
		require.True(t, errors.As(err, &scriptErr), source)
		assert.Equal(t, KindRuntime, scriptErr.Kind, source)
		assert.Equal(t, StageResult, scriptErr.Stage, source)
	}

	assert.Equal(t, 0.0, count(t, engine, store))
}

func TestRunTimeout(t *testing.T) {
	engine, store := prepare(t, Option{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := run(t, engine, store, `create_vertex("user", nil) while true do end`, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRuntime))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 0.0, count(t, engine, store))
}

func TestExecuteCanceled(t *testing.T) {
	engine, store := prepare(t, Option{})
	trans, err := store.Transaction(testAccountID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Execute(ctx, trans, testAccountID, `create_vertex("user", nil)`, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0.0, count(t, engine, store))
}

func TestRunLibraries(t *testing.T) {
	engine, store := prepare(t, Option{})

	value, err := run(t, engine, store, `
		return {
			os = os == nil,
			io = io == nil,
			require = require == nil,
			dofile = dofile == nil,
			loadfile = loadfile == nil,
			upper = string.upper("braid"),
			floor = math.floor(2.7),
			concat = table.concat({"a", "b"}, ",")
		}
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"os":       true,
		"io":       true,
		"require":  true,
		"dofile":   true,
		"loadfile": true,
		"upper":    "BRAID",
		"floor":    2.0,
		"concat":   "a,b",
	}, value)

	engine, store = prepare(t, Option{Libraries: []string{"base", "unknown"}})
	assert.Equal(t, []string{"base"}, engine.Option().Libraries)

	value, err = run(t, engine, store, `return string == nil`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestRunLog(t *testing.T) {
	engine, store := prepare(t, Option{})

	value, err := run(t, engine, store, `
		log.trace("trace %s", "message")
		log.debug("debug %v", {a = 1})
		log.info("info")
		log.warn("warn %d", 1)
		log.error("error %v", function() end)
		return true
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestCache(t *testing.T) {
	engine, store := prepare(t, Option{CacheSize: 2})
	require.NotNil(t, engine.Cache())

	for i := 0; i < 3; i++ {
		_, err := run(t, engine, store, `return 1`, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, engine.Cache().Len())

	for i := 0; i < 3; i++ {
		_, err := run(t, engine, store, fmt.Sprintf(`return %d`, i+2), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, engine.Cache().Len())

	first, err := engine.Cache().Compile(`return "same"`)
	require.NoError(t, err)
	second, err := engine.Cache().Compile(`return "same"`)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = engine.Cache().Compile(`return +`)
	assert.Error(t, err)

	engine.Cache().Purge()
	assert.Equal(t, 0, engine.Cache().Len())

	var disabled *Cache
	proto, err := disabled.Compile(`return 1`)
	require.NoError(t, err)
	assert.NotNil(t, proto)
	assert.Equal(t, 0, disabled.Len())
}

func TestOptionValidate(t *testing.T) {
	option := Option{MaxDepth: -1, CallStackSize: 1 << 20, Libraries: []string{" Base ", "os"}}
	option.Validate()
	assert.Equal(t, 64, option.MaxDepth)
	assert.Equal(t, []string{"base", "os"}, option.Libraries)
	assert.LessOrEqual(t, option.CallStackSize, 16384)

	option = Option{MaxDepth: 5000}
	option.Validate()
	assert.Equal(t, 1024, option.MaxDepth)
	assert.Equal(t, DefaultLibraries, option.Libraries)
}

func TestScriptError(t *testing.T) {
	cause := errors.New("disk full")
	err := commitError(cause)
	assert.Equal(t, KindRuntime, err.Kind)
	assert.Equal(t, StageCommit, err.Stage)
	assert.Contains(t, err.Error(), "could not commit script transaction")
	assert.True(t, errors.Is(err, cause))

	assert.Equal(t, "out of memory", (&ScriptError{Kind: KindMemory, Message: "registry overflow"}).Error())
	assert.Equal(t, "script panicked", (&ScriptError{Kind: KindPanicked, Message: "boom"}).Error())
	assert.Equal(t, "bad argument #2 (expected number)", (&ArgumentError{Position: 2, Message: "expected number"}).Error())
	assert.Equal(t, "commit", StageCommit.String())
	assert.Equal(t, "memory", KindMemory.String())
	assert.False(t, IsKind(cause, KindRuntime))
}

func TestRunMemory(t *testing.T) {
	engine, store := prepare(t, Option{RegistrySize: 1024, RegistryMaxSize: 4096})

	_, err := run(t, engine, store, `
		local t = {}
		for i = 1, 10000 do t[i] = i end
		return unpack(t)
	`, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMemory))
	assert.Equal(t, "out of memory", err.Error())

	for _, source := range []string{
		`error("registry overflow")`,
		`error("registry overflow", 0)`,
		`assert(false, "registry overflow")`,
		`local ok, e = pcall(error, "registry overflow") error(e, 0)`,
	} {
		_, err = run(t, engine, store, source, nil)
		require.Error(t, err, source)
		assert.True(t, IsKind(err, KindRuntime), source)
		assert.Contains(t, err.Error(), "registry overflow", source)
	}

	value, err := run(t, engine, store, `
		local _, plain = pcall(error, "plain", 0)
		local _, located = pcall(function() error("located") end)
		local _, object = pcall(error, {code = 7})
		local _, asserted = pcall(assert, false)
		return {plain = plain, located = located, code = object.code, asserted = asserted, passed = assert(1, "unused")}
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"plain":    "plain",
		"located":  "<script>:3: located",
		"code":     7.0,
		"asserted": "<script>:5: assertion failed!",
		"passed":   1.0,
	}, value)
}

func prepare(t *testing.T, option Option) (*Engine, *buntdb.BuntDB) {
	t.Helper()
	engine, err := New(option)
	require.NoError(t, err)

	store, err := buntdb.New("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return engine, store
}

func run(t *testing.T, engine *Engine, store graph.Datastore, source string, arg interface{}) (interface{}, error) {
	t.Helper()
	trans, err := store.Transaction(testAccountID)
	require.NoError(t, err)
	return engine.Run(trans, testAccountID, source, arg)
}

func vertices(t *testing.T, engine *Engine, store graph.Datastore, n int) []string {
	t.Helper()
	value, err := run(t, engine, store, `
		local ids = {}
		for i = 1, arg do ids[i] = create_vertex("user", nil) end
		return ids
	`, float64(n))
	require.NoError(t, err)

	ids := []string{}
	for i := 1; i <= n; i++ {
		ids = append(ids, value.(map[string]interface{})[fmt.Sprintf("%d", i)].(string))
	}
	return ids
}

func count(t *testing.T, engine *Engine, store graph.Datastore) float64 {
	t.Helper()
	value, err := run(t, engine, store, `return #get_vertex_range("", 65535)`, nil)
	require.NoError(t, err)
	return value.(float64)
}
