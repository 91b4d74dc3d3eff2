package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is a structured payload document: null, bool, number, string,
// array or object. The zero Value is null. Values are treated as immutable
// once built.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an array value.
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value(nil), items...)}
}

// Object builds an object value. A nil map yields an empty object.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// FromAny converts decoded JSON or YAML data into a Value.
func FromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parsing number %q: %w", v.String(), err)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = conv
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = conv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case map[any]any:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			obj[fmt.Sprint(k)] = conv
		}
		return Value{kind: KindObject, obj: obj}, nil
	}
	return Value{}, fmt.Errorf("unsupported payload type %T", raw)
}

// MustFromAny is FromAny for literals known to be valid.
func MustFromAny(raw any) Value {
	v, err := FromAny(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseValue decodes a JSON document into a Value.
func ParseValue(text string) (Value, error) {
	var v Value
	if strings.TrimSpace(text) == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// ToAny converts the value back into plain Go data (map[string]any, []any, ...).
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.ToAny()
		}
		return out
	}
	return nil
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Items returns the array elements, nil for non-arrays.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Len returns the number of array items or object fields.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Keys returns object keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns an object field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	item, ok := v.obj[key]
	return item, ok
}

// Lookup resolves a dotted path. Numeric segments index arrays.
func (v Value) Lookup(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj[seg]
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, item := range v.obj {
			o, ok := other.obj[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two numbers or two strings. ok is false for any other pairing.
func (v Value) Compare(other Value) (cmp int, ok bool) {
	switch {
	case v.kind == KindNumber && other.kind == KindNumber:
		switch {
		case v.n < other.n:
			return -1, true
		case v.n > other.n:
			return 1, true
		}
		return 0, true
	case v.kind == KindString && other.kind == KindString:
		return strings.Compare(v.s, other.s), true
	}
	return 0, false
}

// Contains reports membership for arrays, key presence for objects and
// substring match for strings.
func (v Value) Contains(needle Value) bool {
	switch v.kind {
	case KindArray:
		for _, item := range v.arr {
			if item.Equal(needle) {
				return true
			}
		}
	case KindObject:
		if s, ok := needle.AsString(); ok {
			_, found := v.obj[s]
			return found
		}
	case KindString:
		if s, ok := needle.AsString(); ok {
			return strings.Contains(v.s, s)
		}
	}
	return false
}

// IsScalar reports whether v is a bool, number or string.
func (v Value) IsScalar() bool {
	return v.kind == KindBool || v.kind == KindNumber || v.kind == KindString
}

// Text renders scalars without JSON quoting and composites as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// String implements fmt.Stringer.
func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)) {
		return nil, fmt.Errorf("cannot encode non-finite number %v", v.n)
	}
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	conv, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return v.ToAny(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	conv, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}
