// Package value implements the structured, JSON-compatible tree that
// Statehouse stores as the payload of a state record. Values are
// compared and serialized opaquely by the rest of the engine; this
// package is the only place that looks inside one.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

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
	default:
		return "unknown"
	}
}

// Value is a node in a JSON-compatible tree: null, boolean, number,
// string, array, or object. It is a plain value type, so a Value can
// never contain a reference cycle back to itself.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	s      string
	arr    []Value
	object map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64 as a number value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: json.Number(formatNumber(n))}
}

// NumberFromString wraps a pre-formatted numeric literal, preserving
// its exact textual representation through round trips.
func NumberFromString(s string) Value {
	return Value{kind: KindNumber, num: json.Number(s)}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps an ordered sequence of values. The slice is copied.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object wraps a string-keyed map of values. The map is copied.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindObject, object: cp}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Bool() bool       { return v.b }
func (v Value) Number() json.Number { return v.num }
func (v Value) String() string   { return v.s }

// Array returns the element slice; callers must not mutate it.
func (v Value) Array() []Value { return v.arr }

// Object returns the field map; callers must not mutate it.
func (v Value) Object() map[string]Value { return v.object }

// Clone returns a deep copy, safe to mutate independently.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		cp := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cp[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: cp}
	case KindObject:
		cp := make(map[string]Value, len(v.object))
		for k, e := range v.object {
			cp[k] = e.Clone()
		}
		return Value{kind: KindObject, object: cp}
	default:
		return v
	}
}

// Equal reports whether two values are structurally identical.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num.String() == b.num.String()
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.object) != len(b.object) {
			return false
		}
		for k, av := range a.object {
			bv, ok := b.object[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num.String()), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		// Sort keys for deterministic encoding across storage writes.
		keys := make([]string, 0, len(v.object))
		for k := range v.object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.object[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, decoding numbers with
// json.Number so large integers and decimal literals round-trip
// without float64 precision loss.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Parse decodes a JSON document into a Value.
func Parse(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

func fromRaw(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return NumberFromString(t.String()), nil
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			cv, err := fromRaw(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = cv
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := fromRaw(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = cv
		}
		return Value{kind: KindObject, object: fields}, nil
	default:
		return Value{}, fmt.Errorf("value: unsupported JSON type %T", raw)
	}
}

func formatNumber(n float64) string {
	// %g round-trips cleanly for the magnitudes values realistically hold
	// and avoids the trailing zeros json.Marshal(float64) can produce.
	return fmt.Sprintf("%g", n)
}
