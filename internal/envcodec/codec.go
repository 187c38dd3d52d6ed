// Package envcodec implements the deterministic JSON encoding used for
// result envelopes sent to the orchestrator. It is a pure function on
// values, not a stateful visitor.
//
// Encode tags the value shapes that don't map onto plain JSON types going
// over the wire: bytes, time.Time, date-only values (Date), and decimal
// strings (Decimal). Decoding (DecodeDictionary, DecodeDictValue) reverses
// only the bytes tag; datetime, date, and decimal values stay as their
// tagged {__type__, __data__} objects after decoding.
package envcodec

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"time"
)

// Tag attribute names, matching the orchestrator's wire format exactly.
const (
	AttrType = "__type__"
	AttrData = "__data__"

	TypeBytes    = "bytes"
	TypeDateTime = "datetime"
	TypeDate     = "date"
	TypeDecimal  = "decimal"
)

// Date wraps a time.Time that should be encoded with TypeDate (date-only,
// no time-of-day) instead of TypeDateTime.
type Date time.Time

// Decimal is a decimal value preserved as its exact string representation.
// Go has no built-in arbitrary-precision decimal type; callers that need
// exact decimal semantics wrap the already-formatted string in Decimal
// rather than passing a float that would lose precision.
type Decimal string

// taggedValue is the wire shape for tagged scalars.
type taggedValue struct {
	Type string `json:"__type__"`
	Data string `json:"__data__"`
}

// Encode serializes v using the tagging rules below, returning the same
// byte-for-byte output every time for the same input (deterministic map key
// ordering is handled by encoding/json itself, which always sorts map keys).
func Encode(v any) ([]byte, error) {
	return json.Marshal(prepare(v))
}

// prepare walks v recursively, replacing any date/time/bytes/decimal/struct
// value with its JSON-friendly tagged or shallow-mapped form. Plain
// maps/slices/scalars pass through unchanged so encoding/json handles them
// natively.
func prepare(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Decimal:
		return taggedValue{Type: TypeDecimal, Data: string(val)}
	case Date:
		return taggedValue{Type: TypeDate, Data: time.Time(val).Format("2006-01-02")}
	case time.Time:
		return taggedValue{Type: TypeDateTime, Data: val.Format(time.RFC3339Nano)}
	case []byte:
		return taggedValue{Type: TypeBytes, Data: base64.StdEncoding.EncodeToString(val)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = prepare(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = prepare(item)
		}
		return out
	}

	return prepareReflect(v)
}

// prepareReflect handles struct values (shallow field map, matching
// dataclasses.asdict's one-level-deep behavior) and slices/maps of
// concrete element types that the type switch above didn't catch.
func prepareReflect(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return v
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return prepare(rv.Elem().Interface())
	case reflect.Struct:
		return structToMap(rv)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = prepare(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[keyString(key)] = prepare(rv.MapIndex(key).Interface())
		}
		return out
	default:
		return v
	}
}

func keyString(key reflect.Value) string {
	if key.Kind() == reflect.String {
		return key.String()
	}
	data, err := json.Marshal(key.Interface())
	if err != nil {
		return ""
	}
	return string(data)
}

// structToMap converts a struct to a shallow field map, keyed by the
// field's json tag name when present, else its Go field name. Unexported
// fields are skipped, matching json.Marshal's own visibility rule.
func structToMap(rv reflect.Value) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if idx := indexComma(tag); idx >= 0 {
				tag = tag[:idx]
			}
			if tag != "" {
				name = tag
			}
		}

		out[name] = prepare(rv.Field(i).Interface())
	}

	return out
}

func indexComma(s string) int {
	for i, r := range s {
		if r == ',' {
			return i
		}
	}
	return -1
}

// DecodeDictValue inspects a decoded JSON object; if it carries the bytes
// tag, it returns the decoded []byte, otherwise it returns value unchanged.
func DecodeDictValue(value map[string]any) any {
	if value[AttrType] == TypeBytes {
		data, _ := value[AttrData].(string)
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return value
		}
		return decoded
	}
	return value
}

// DecodeDictionary recursively decodes any bytes-tagged values nested
// inside dictValue, leaving everything else untouched. Used to undo the
// tagging applied by a peer before an inbound storage operation body is
// processed locally.
func DecodeDictionary(dictValue map[string]any) map[string]any {
	out := make(map[string]any, len(dictValue))
	for key, value := range dictValue {
		out[key] = decodeDeep(value)
	}
	return out
}

func decodeDeep(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if _, tagged := v[AttrType]; tagged {
			return DecodeDictValue(v)
		}
		return DecodeDictionary(v)
	default:
		return value
	}
}
