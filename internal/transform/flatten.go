package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// flattenRecord flattens nested objects into dotted keys:
// {"hoa": {"fee": 150}} becomes {"hoa.fee": 150}.
//
// Scalars and arrays pass through untouched. An empty nested object
// contributes no keys.
func flattenRecord(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// cellText renders one flattened value as a CSV cell.
//
// Numbers keep their original JSON text (the decoder runs with UseNumber, so
// 29.4241000 stays 29.4241000). nil renders as an empty cell, which the
// loader turns into SQL NULL. Arrays and any other non-scalars are rendered
// as compact JSON.
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
