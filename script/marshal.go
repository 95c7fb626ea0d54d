package script

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/yaoapp/braid/graph"
	lua "github.com/yuin/gopher-lua"
)

// DecodeJSON decode a script argument, integers stay int64/uint64 so they reach scripts as strings
func DecodeJSON(data []byte) (interface{}, error) {
	return graph.UnmarshalJSON(data)
}

// EncodeJSON encode a script result
func EncodeJSON(v interface{}) ([]byte, error) {
	return graph.MarshalJSON(v)
}

// ToNative convert a JSON value to a Lua value.
// Integers become decimal strings, arrays become tables keyed 1..n.
func ToNative(L *lua.LState, v interface{}, maxDepth int) (lua.LValue, error) {
	return toNative(L, v, 0, maxDepth)
}

func toNative(L *lua.LState, v interface{}, depth int, maxDepth int) (lua.LValue, error) {
	switch value := v.(type) {
	case nil:
		return lua.LNil, nil

	case bool:
		return lua.LBool(value), nil

	case string:
		return lua.LString(value), nil

	case float64:
		return lua.LNumber(value), nil

	case float32:
		return lua.LNumber(value), nil

	case int:
		return lua.LString(strconv.FormatInt(int64(value), 10)), nil

	case int8:
		return lua.LString(strconv.FormatInt(int64(value), 10)), nil

	case int16:
		return lua.LString(strconv.FormatInt(int64(value), 10)), nil

	case int32:
		return lua.LString(strconv.FormatInt(int64(value), 10)), nil

	case int64:
		return lua.LString(strconv.FormatInt(value, 10)), nil

	case uint:
		return lua.LString(strconv.FormatUint(uint64(value), 10)), nil

	case uint8:
		return lua.LString(strconv.FormatUint(uint64(value), 10)), nil

	case uint16:
		return lua.LString(strconv.FormatUint(uint64(value), 10)), nil

	case uint32:
		return lua.LString(strconv.FormatUint(uint64(value), 10)), nil

	case uint64:
		return lua.LString(strconv.FormatUint(value, 10)), nil

	case json.Number:
		return toNative(L, graph.NormalizeNumber(value), depth, maxDepth)

	case []interface{}:
		if depth >= maxDepth {
			return lua.LNil, fmt.Errorf("value exceeds maximum depth %d", maxDepth)
		}
		tbl := L.CreateTable(len(value), 0)
		for i, item := range value {
			native, err := toNative(L, item, depth+1, maxDepth)
			if err != nil {
				return lua.LNil, err
			}
			tbl.RawSetInt(i+1, native)
		}
		return tbl, nil

	case map[string]interface{}:
		if depth >= maxDepth {
			return lua.LNil, fmt.Errorf("value exceeds maximum depth %d", maxDepth)
		}
		tbl := L.CreateTable(0, len(value))
		for key, item := range value {
			native, err := toNative(L, item, depth+1, maxDepth)
			if err != nil {
				return lua.LNil, err
			}
			tbl.RawSetString(key, native)
		}
		return tbl, nil
	}

	return lua.LNil, fmt.Errorf("unsupported value type %T", v)
}

// ToJSON convert a Lua value to a JSON value.
// Every table becomes an object, number keys are written in decimal.
func ToJSON(v lua.LValue, maxDepth int) (interface{}, error) {
	return toJSON(v, 0, maxDepth)
}

func toJSON(v lua.LValue, depth int, maxDepth int) (interface{}, error) {
	switch value := v.(type) {
	case *lua.LNilType:
		return nil, nil

	case lua.LBool:
		return bool(value), nil

	case lua.LNumber:
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("number %v is not representable in JSON", f)
		}
		return f, nil

	case lua.LString:
		return string(value), nil

	case *lua.LTable:
		if depth >= maxDepth {
			return nil, fmt.Errorf("table exceeds maximum depth %d", maxDepth)
		}

		res := map[string]interface{}{}
		var failure error
		value.ForEach(func(key lua.LValue, item lua.LValue) {
			if failure != nil {
				return
			}

			var name string
			switch k := key.(type) {
			case lua.LString:
				name = string(k)
			case lua.LNumber:
				name = strconv.FormatFloat(float64(k), 'f', -1, 64)
			default:
				failure = fmt.Errorf("table key of type %s is not supported", key.Type().String())
				return
			}

			converted, err := toJSON(item, depth+1, maxDepth)
			if err != nil {
				failure = err
				return
			}
			res[name] = converted
		})

		if failure != nil {
			return nil, failure
		}
		return res, nil
	}

	if v == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("value of type %s is not supported", v.Type().String())
}
