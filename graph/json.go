package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
)

func init() {
	jsoniter.RegisterTypeEncoderFunc("float64", encodeFloat, nil)
}

var jsonAPI = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// MarshalJSON encode a JSON value
func MarshalJSON(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

// DecodeJSON decode into v, numbers inside interface{} fields are json.Number (see Normalize)
func DecodeJSON(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}

// UnmarshalJSON decode a JSON value keeping the integer/float distinction:
// integer literals become int64 (uint64 above MaxInt64), the others float64.
func UnmarshalJSON(data []byte) (interface{}, error) {
	var v interface{}
	if err := jsonAPI.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// Normalize narrow the json.Number values of a decoded document
func Normalize(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		return NormalizeNumber(value)

	case []interface{}:
		for i := range value {
			value[i] = Normalize(value[i])
		}
		return value

	case map[string]interface{}:
		for k := range value {
			value[k] = Normalize(value[k])
		}
		return value
	}
	return v
}

// NormalizeNumber convert a json.Number to int64, uint64 or float64
func NormalizeNumber(n json.Number) interface{} {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// encodeFloat write float64 values with a fraction or an exponent so they decode as floats again (1 is written 1.0)
func encodeFloat(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	f := *(*float64)(ptr)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		stream.Error = fmt.Errorf("unsupported value: %v", f)
		return
	}

	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}

	s := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	stream.WriteRaw(s)
}
