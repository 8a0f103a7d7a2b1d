package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeRecord decodes a single JSON object keeping numbers as json.Number
// so integers are written back exactly as upstream sent them.
func DecodeRecord(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

// Lookup walks nested objects by key and returns nil as soon as a step is
// missing or not an object.
func Lookup(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok || m == nil {
			return nil
		}
		v = m[k]
	}
	return v
}

// LookupString is Lookup followed by Scalar.
func LookupString(v any, keys ...string) string {
	return Scalar(Lookup(v, keys...))
}

// LookupList returns the list at the path, or nil.
func LookupList(v any, keys ...string) []any {
	list, _ := Lookup(v, keys...).([]any)
	return list
}

// LookupObject returns the object at the path, or nil.
func LookupObject(v any, keys ...string) map[string]any {
	m, _ := Lookup(v, keys...).(map[string]any)
	return m
}

// IsTrue reports whether the value at the path is the JSON boolean true.
func IsTrue(v any, keys ...string) bool {
	b, ok := Lookup(v, keys...).(bool)
	return ok && b
}

// Scalar renders a value as cell text: strings as-is, numbers as their JSON
// text, booleans as true/false, null as empty and nested values as compact JSON.
func Scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}
