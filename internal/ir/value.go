package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the document types a slice may hold.
// Only Null, String, Int, Bool, Array and Object implement it.
// There is no float type: replay equality must be exact.
type Value interface {
	irValue()
}

// Null is the JSON null. Unlike nil it satisfies Value.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string document value.
type String string

func (String) irValue() {}

// Int is an integer document value. Always int64.
type Int int64

func (Int) irValue() {}

// Bool is a boolean document value.
type Bool bool

func (Bool) irValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object maps string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Clone returns a shallow copy. Nested values are shared, which is safe
// because values are never mutated in place once stored.
func (o Object) Clone() Object {
	out := make(Object, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Str returns the string at key, or "" and false.
func (o Object) Str(key string) (string, bool) {
	s, ok := o[key].(String)
	return string(s), ok
}

// Int returns the integer at key, or 0 and false.
func (o Object) Int(key string) (int64, bool) {
	n, ok := o[key].(Int)
	return int64(n), ok
}

// Bool returns the boolean at key, or false and false.
func (o Object) Bool(key string) (bool, bool) {
	b, ok := o[key].(Bool)
	return bool(b), ok
}

// Obj returns the object at key, or nil and false.
func (o Object) Obj(key string) (Object, bool) {
	m, ok := o[key].(Object)
	return m, ok
}

// MarshalJSON implements json.Marshaler with sorted keys.
// This is not the canonical form; use MarshalCanonical for digests.
func (o Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalValue(o[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		vb, err := MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*o = obj
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*a = arr
	return nil
}

// MarshalValue marshals any Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// ParseValue decodes JSON into a Value. Floats are rejected; integers
// beyond 2^53 keep full precision.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON or YAML data into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not allowed in documents: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not allowed in documents: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromAny is FromAny restricted to objects. A nil map yields an empty Object.
func ObjectFromAny(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// ToAny converts a Value back into plain Go data (for output and YAML comparison).
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality. nil and Null are equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case String, Int, Bool:
		return a == b
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
