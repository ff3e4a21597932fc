package docstore

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Field accessors tolerate the shapes values take after a JSON round trip
// (float64 or json.Number for numbers, RFC 3339 strings for times) as well
// as the native Go values a caller wrote.

// String returns m[key] if it is a string.
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns m[key] if it is a bool.
func Bool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Float returns m[key] as a float64.
func Float(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns m[key] when it holds an integral number.
func Int(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// Time parses m[key] as an RFC 3339 timestamp.
func Time(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}

// Timestamp formats t for storage in a document field.
func Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
