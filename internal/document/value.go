// Package document models Metabase query documents (MBQL, dashboard specs,
// visualization settings) as a closed set of JSON value types.
//
// Unlike map[string]any, an Object keeps its members in document order and
// a Number keeps its literal text, so a document that passes through the
// rewriter untouched marshals back to the same JSON it was parsed from.
package document

import (
	"strconv"
)

// Value is one node of a document: Object, Array, String, Number, Bool or Null.
type Value interface {
	isValue()
}

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object is a JSON object with its members in document order.
type Object []Member

// Array is a JSON array.
type Array []Value

// String is a JSON string.
type String string

// Number is a JSON number, stored as its literal text.
type Number string

// Bool is a JSON boolean.
type Bool bool

// Null is the JSON null literal.
type Null struct{}

func (Object) isValue() {}
func (Array) isValue()  {}
func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (Null) isValue()   {}

// Int returns the Number for an integer.
func Int(n int64) Number {
	return Number(strconv.FormatInt(n, 10))
}

// Int64 reports the integer value of n. Literals with a fraction or an
// exponent are not integers, even when their value is whole.
func (n Number) Int64() (int64, bool) {
	i, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// AsInt64 reports whether v is an integer Number and returns its value.
func AsInt64(v Value) (int64, bool) {
	n, ok := v.(Number)
	if !ok {
		return 0, false
	}
	return n.Int64()
}

// Get returns the value of the first member named key.
func (o Object) Get(key string) (Value, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Set returns a copy of o with the first member named key replaced by v,
// or with v appended when o has no such member. o itself is not modified.
func (o Object) Set(key string, v Value) Object {
	out := make(Object, len(o), len(o)+1)
	copy(out, o)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = v
			return out
		}
	}
	return append(out, Member{Key: key, Value: v})
}

// Keys returns the member keys in document order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

// Equal reports whether a and b are the same document: same member keys in
// the same order, same array lengths, same scalar values. Numbers compare by
// literal text. A nil Value equals Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}

	switch av := a.(type) {
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Key != bv[i].Key || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
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
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	default:
		return false
	}
}
