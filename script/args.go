package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/braid/graph"
	lua "github.com/yuin/gopher-lua"
)

var extractorNames = map[Extractor]string{
	String:        "string",
	OptionalInt64: "optional i64",
	ID:            "uuid",
	OptionalID:    "optional uuid",
	Type:          "type",
	OptionalTime:  "optional datetime",
	Weight:        "weight",
	Limit:         "limit",
	Offset:        "offset",
	Properties:    "properties",
	Value:         "value",
}

func (extractor Extractor) String() string {
	if name, has := extractorNames[extractor]; has {
		return name
	}
	return fmt.Sprintf("extractor(%d)", extractor)
}

// Extract read the argument at position n (1-based)
func (extractor Extractor) Extract(L *lua.LState, n int, maxDepth int) (interface{}, error) {
	switch extractor {
	case String:
		return ArgString(L, n)
	case OptionalInt64:
		return ArgOptionalInt64(L, n)
	case ID:
		return ArgID(L, n)
	case OptionalID:
		return ArgOptionalID(L, n)
	case Type:
		return ArgType(L, n)
	case OptionalTime:
		return ArgOptionalTime(L, n)
	case Weight:
		return ArgWeight(L, n)
	case Limit:
		return ArgLimit(L, n)
	case Offset:
		return ArgOffset(L, n)
	case Properties:
		return ArgProperties(L, n, maxDepth)
	case Value:
		return ArgValue(L, n, maxDepth)
	}
	return nil, &ArgumentError{Position: n, Message: fmt.Sprintf("unknown extractor %d", extractor)}
}

// ArgString read a string, numbers are converted
func ArgString(L *lua.LState, n int) (string, error) {
	switch value := L.Get(n).(type) {
	case lua.LString:
		return string(value), nil
	case lua.LNumber:
		return value.String(), nil
	}
	return "", &ArgumentError{Position: n, Message: "expected string"}
}

// ArgOptionalInt64 read an integer encoded as a decimal string, "" is absent
func ArgOptionalInt64(L *lua.LState, n int) (*int64, error) {
	s, err := ArgString(L, n)
	if err != nil {
		return nil, err
	}

	if s == "" {
		return nil, nil
	}

	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &ArgumentError{Position: n, Message: "expected i64 as string"}
	}
	return &i, nil
}

// ArgID read a uuid
func ArgID(L *lua.LState, n int) (uuid.UUID, error) {
	s, err := ArgString(L, n)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &ArgumentError{Position: n, Message: "expected uuid as string"}
	}
	return id, nil
}

// ArgOptionalID read a uuid, "" is uuid.Nil
func ArgOptionalID(L *lua.LState, n int) (uuid.UUID, error) {
	s, err := ArgString(L, n)
	if err != nil {
		return uuid.Nil, err
	}

	if s == "" {
		return uuid.Nil, nil
	}
	return ArgID(L, n)
}

// ArgType read a vertex or edge type
func ArgType(L *lua.LState, n int) (graph.Type, error) {
	s, err := ArgString(L, n)
	if err != nil {
		return "", err
	}

	t, err := graph.NewType(s)
	if err != nil {
		return "", &ArgumentError{Position: n, Message: err.Error()}
	}
	return t, nil
}

// ArgOptionalTime read Unix seconds encoded as a decimal string, "" is absent
func ArgOptionalTime(L *lua.LState, n int) (*time.Time, error) {
	i, err := ArgOptionalInt64(L, n)
	if err != nil || i == nil {
		return nil, err
	}

	t := time.Unix(*i, 0).UTC()
	return &t, nil
}

// ArgWeight read a weight between -1.0 and 1.0
func ArgWeight(L *lua.LState, n int) (graph.Weight, error) {
	f, err := argNumber(L, n)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(f) || f < -1.0 || f > 1.0 {
		return 0, &ArgumentError{Position: n, Message: "weight must be between -1.0 and 1.0"}
	}

	w, err := graph.NewWeight(float32(f))
	if err != nil {
		return 0, &ArgumentError{Position: n, Message: "weight must be between -1.0 and 1.0"}
	}
	return w, nil
}

// ArgLimit read a limit, values above 65535 saturate
func ArgLimit(L *lua.LState, n int) (uint16, error) {
	f, err := argInteger(L, n)
	if err != nil {
		return 0, err
	}

	if f < 0 {
		return 0, &ArgumentError{Position: n, Message: "limit cannot be negative"}
	}

	if f > math.MaxUint16 {
		return math.MaxUint16, nil
	}
	return uint16(f), nil
}

// ArgOffset read a non-negative offset
func ArgOffset(L *lua.LState, n int) (uint64, error) {
	f, err := argInteger(L, n)
	if err != nil {
		return 0, err
	}

	if f < 0 {
		return 0, &ArgumentError{Position: n, Message: "offset cannot be negative"}
	}

	if f >= math.MaxUint64 {
		return math.MaxUint64, nil
	}
	return uint64(f), nil
}

// ArgProperties read a table of properties, nil is an empty table
func ArgProperties(L *lua.LState, n int, maxDepth int) (map[string]interface{}, error) {
	switch value := L.Get(n).(type) {
	case *lua.LNilType:
		return map[string]interface{}{}, nil

	case *lua.LTable:
		converted, err := ToJSON(value, maxDepth)
		if err != nil {
			return nil, &ArgumentError{Position: n, Message: err.Error()}
		}
		return converted.(map[string]interface{}), nil
	}
	return nil, &ArgumentError{Position: n, Message: "expected table"}
}

// ArgValue read any JSON value
func ArgValue(L *lua.LState, n int, maxDepth int) (interface{}, error) {
	value, err := ToJSON(L.Get(n), maxDepth)
	if err != nil {
		return nil, &ArgumentError{Position: n, Message: err.Error()}
	}
	return value, nil
}

// argNumber read a number, numeric strings are converted
func argNumber(L *lua.LState, n int) (float64, error) {
	switch value := L.Get(n).(type) {
	case lua.LNumber:
		return float64(value), nil

	case lua.LString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(value)), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, &ArgumentError{Position: n, Message: "expected number"}
}

// argInteger read a number truncated toward zero
func argInteger(L *lua.LState, n int) (float64, error) {
	f, err := argNumber(L, n)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(f) {
		return 0, &ArgumentError{Position: n, Message: "expected number"}
	}
	return math.Trunc(f), nil
}
