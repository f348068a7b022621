// Package body holds the tree value used for pact bodies, message contents and metadata.
// Object keys keep their declaration order so that generated documents and mismatch
// reports are deterministic.
package body

import (
	"math"
	"strconv"
	"strings"
)

type Kind int

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
		return "boolean"
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

// Value is a JSON-like tree node. The zero value is null.
type Value struct {
	kind   Kind
	b      bool
	raw    string
	items  []Value
	keys   []string
	fields map[string]Value
}

// Field is a single object entry, used to build objects in order.
type Field struct {
	Key   string
	Value Value
}

func Null() Value {
	return Value{kind: KindNull}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func String(s string) Value {
	return Value{kind: KindString, raw: s}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, raw: strconv.FormatInt(i, 10)}
}

// Float keeps a fractional marker on whole numbers so decimal examples stay decimal.
func Float(f float64) Value {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return Value{kind: KindNumber, raw: s}
}

// Number wraps a JSON number literal without reformatting it.
func Number(literal string) Value {
	return Value{kind: KindNumber, raw: literal}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Object builds an object; a repeated key keeps its first position and its last value.
func Object(fields ...Field) Value {
	v := Value{kind: KindObject, fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if _, exists := v.fields[f.Key]; !exists {
			v.keys = append(v.keys, f.Key)
		}
		v.fields[f.Key] = f.Value
	}
	return v
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) Bool() bool {
	return v.b
}

// Text returns the content of a string value, or the literal of a number.
func (v Value) Text() string {
	return v.raw
}

func (v Value) Float() (float64, error) {
	return strconv.ParseFloat(v.raw, 64)
}

// IsInteger reports whether a number literal has no fraction or exponent.
func (v Value) IsInteger() bool {
	return v.kind == KindNumber && !strings.ContainsAny(v.raw, ".eE")
}

func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	case KindString:
		return len(v.raw)
	}
	return 0
}

func (v Value) Items() []Value {
	return v.items
}

func (v Value) Index(i int) Value {
	if i < 0 || i >= len(v.items) {
		return Null()
	}
	return v.items[i]
}

func (v Value) Keys() []string {
	return v.keys
}

func (v Value) Get(key string) (Value, bool) {
	f, ok := v.fields[key]
	return f, ok
}

func (v Value) Fields() []Field {
	fields := make([]Field, 0, len(v.keys))
	for _, k := range v.keys {
		fields = append(fields, Field{Key: k, Value: v.fields[k]})
	}
	return fields
}

// Equal is deep equality; numbers compare by value, object key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.raw == o.raw
	case KindNumber:
		if v.raw == o.raw {
			return true
		}
		a, errA := v.Float()
		b, errB := o.Float()
		return errA == nil && errB == nil && a == b
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for k, f := range v.fields {
			of, ok := o.fields[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts the tree into plain Go values (maps, slices, float64, string, bool, nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.raw
	case KindNumber:
		if v.IsInteger() {
			if i, err := strconv.ParseInt(v.raw, 10, 64); err == nil {
				return i
			}
		}
		f, _ := v.Float()
		return f
	case KindArray:
		out := make([]interface{}, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.keys))
		for k, f := range v.fields {
			out[k] = f.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	if v.kind == KindString {
		return v.raw
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}
