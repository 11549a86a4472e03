package tools

import (
	"encoding/json"

	"mcpruntime/value"
)

// rawToValue converts one JSON field into the dynamic Value domain, for
// seeding a composite execution's variable context from the caller's
// params object (spec §4.2 step 2).
func rawToValue(raw json.RawMessage) value.Value {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return value.Null()
	}
	return anyToValue(v)
}

func anyToValue(v any) value.Value {
	switch x := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(x)
	case float64:
		if x == float64(int32(x)) {
			return value.Int(int32(x))
		}
		return value.Float(float32(x))
	case string:
		return value.String(x)
	case []any:
		elems := make([]value.Value, len(x))
		for i, e := range x {
			elems[i] = anyToValue(e)
		}
		return value.Array(elems)
	default:
		// Objects have no first-class Value representation; templates
		// reference their scalar fields, not the object itself.
		return value.Null()
	}
}

// resultToValue reduces a tool Result to the Value a composite step's
// "store" binding captures: the scalar itself as a Value when the body
// parses as a JSON scalar, otherwise the raw JSON text (spec §4.2
// "bind the tool result under that name").
func resultToValue(r Result) value.Value {
	var v any
	if err := json.Unmarshal([]byte(r.ResultJSON), &v); err != nil {
		return value.String(r.ResultJSON)
	}
	switch v.(type) {
	case map[string]any, []any:
		return value.String(r.ResultJSON)
	default:
		return anyToValue(v)
	}
}
