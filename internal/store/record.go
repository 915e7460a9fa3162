package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one decoded API object. Field accessors tolerate missing
// and null values: absent data stores as NULL.
type Record map[string]any

// DecodeRecord parses one JSON document.
func DecodeRecord(body []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Str returns a string field, or nil when absent or null.
func (r Record) Str(key string) any {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%v", v)
}

// Int returns an integer field, or nil when absent or null.
func (r Record) Int(key string) any {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case float64:
		return int64(val)
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return nil
}

// IntVal returns an integer field with a zero default.
func (r Record) IntVal(key string) int64 {
	if v := r.Int(key); v != nil {
		return v.(int64)
	}
	return 0
}

// StrVal returns a string field with an empty default.
func (r Record) StrVal(key string) string {
	if v := r.Str(key); v != nil {
		return v.(string)
	}
	return ""
}

// Bool returns a boolean field as the 0/1 integer encoding used in
// the database.
func (r Record) Bool(key string) int64 {
	v, ok := r[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
	case float64:
		if val != 0 {
			return 1
		}
	case string:
		if val == "true" || val == "1" {
			return 1
		}
	}
	return 0
}

// Obj returns a nested object field, or nil.
func (r Record) Obj(key string) Record {
	if v, ok := r[key].(map[string]any); ok {
		return Record(v)
	}
	return nil
}

// List returns a nested array of objects; scalar elements are skipped.
func (r Record) List(key string) []Record {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, elem := range raw {
		if obj, ok := elem.(map[string]any); ok {
			out = append(out, Record(obj))
		}
	}
	return out
}

// RawList returns a nested array with elements of any shape.
func (r Record) RawList(key string) []any {
	raw, _ := r[key].([]any)
	return raw
}
