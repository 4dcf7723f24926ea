// Package fields reads loosely-typed server JSON objects through ordered key fallbacks.
//
// Objects are expected to be decoded with json.Decoder.UseNumber so numbers arrive as json.Number.
package fields

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Object is a decoded JSON object.
type Object = map[string]any

// Decode unmarshals b preserving numbers as json.Number.
func Decode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// First returns the first present, non-null value among keys.
func First(o Object, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first key whose value renders to a non-empty string, or "".
func String(o Object, keys ...string) string {
	for _, k := range keys {
		if s := ToString(o[k]); s != "" {
			return s
		}
	}
	return ""
}

// StringOr is String with a default.
func StringOr(o Object, def string, keys ...string) string {
	if s := String(o, keys...); s != "" {
		return s
	}
	return def
}

// Int returns the first key holding an integer (number or numeric string).
func Int(o Object, keys ...string) (int64, bool) {
	for _, k := range keys {
		if n, ok := ToInt(o[k]); ok {
			return n, true
		}
	}
	return 0, false
}

// Bool returns the first key holding a boolean-ish value: true/false, 1/0, "X"/"".
func Bool(o Object, keys ...string) (bool, bool) {
	for _, k := range keys {
		if b, ok := ToBool(o[k]); ok {
			return b, true
		}
	}
	return false, false
}

// ToString renders scalars; objects and arrays render as "".
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ToInt parses integers from numbers or numeric strings. Fractions are rejected.
func ToInt(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ToBool accepts JSON booleans, 0/1 and the SAP-style "X" flag.
func ToBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case json.Number, float64, int, int64:
		n, ok := ToInt(t)
		return n != 0, ok
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "x", "true", "1", "y", "yes":
			return true, true
		case "", "false", "0", "n", "no":
			return false, true
		}
	}
	return false, false
}
