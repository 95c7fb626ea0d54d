package script

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/exception"
	lua "github.com/yuin/gopher-lua"
)

// NumOfArgs get the number of extracted arguments
func (call *Call) NumOfArgs() int {
	return len(call.Args)
}

func (call *Call) arg(i int) interface{} {
	if i < 0 || i >= len(call.Args) {
		exception.New("%s missing argument #%d", 500, call.Name, i+1).Throw()
	}
	return call.Args[i]
}

// ArgsString get the string argument at index i (0-based)
func (call *Call) ArgsString(i int) string {
	return call.arg(i).(string)
}

// ArgsID get the uuid argument at index i
func (call *Call) ArgsID(i int) uuid.UUID {
	return call.arg(i).(uuid.UUID)
}

// ArgsType get the type argument at index i
func (call *Call) ArgsType(i int) graph.Type {
	return call.arg(i).(graph.Type)
}

// ArgsTime get the optional time argument at index i
func (call *Call) ArgsTime(i int) *time.Time {
	return call.arg(i).(*time.Time)
}

// ArgsInt64 get the optional integer argument at index i
func (call *Call) ArgsInt64(i int) *int64 {
	return call.arg(i).(*int64)
}

// ArgsWeight get the weight argument at index i
func (call *Call) ArgsWeight(i int) graph.Weight {
	return call.arg(i).(graph.Weight)
}

// ArgsLimit get the limit argument at index i
func (call *Call) ArgsLimit(i int) uint16 {
	return call.arg(i).(uint16)
}

// ArgsOffset get the offset argument at index i
func (call *Call) ArgsOffset(i int) uint64 {
	return call.arg(i).(uint64)
}

// ArgsMap get the properties argument at index i
func (call *Call) ArgsMap(i int) map[string]interface{} {
	return call.arg(i).(map[string]interface{})
}

// ArgsValue get the JSON value argument at index i
func (call *Call) ArgsValue(i int) interface{} {
	return call.arg(i)
}

// ArgsEdgeKey get the edge key made of the arguments i, i+1 and i+2
func (call *Call) ArgsEdgeKey(i int) graph.EdgeKey {
	return graph.NewEdgeKey(call.ArgsID(i), call.ArgsType(i+1), call.ArgsID(i+2))
}

// Native convert a JSON value for the script
func (call *Call) Native(v interface{}) (lua.LValue, error) {
	value, err := ToNative(call.L, v, call.maxDepth)
	if err != nil {
		return lua.LNil, fmt.Errorf("could not convert the value of %s: %w", call.Name, err)
	}
	return value, nil
}
