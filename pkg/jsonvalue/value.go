// Package jsonvalue provides a recursive value type for JSON documents whose
// shape is not known ahead of decode.
//
// A Value is exactly one of String, Integer, Number, Bool, Array, Object or
// Null. Decode resolves the integer/float ambiguity of JSON numbers in favour
// of Integer: a literal without fraction or exponent that fits in an int64 is
// always an Integer, everything else numeric is a Number.
//
// Values can be built from Go literals with From and Of:
//
//	v := jsonvalue.Of(map[string]any{
//		"type":  "response.output_text.delta",
//		"delta": "Hi",
//		"index": 0,
//	})
package jsonvalue

import (
	"encoding/json"
	"errors"
	"math"
)

// Kind identifies the concrete variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindNumber
	KindBool
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:    "null",
	KindString:  "string",
	KindInteger: "integer",
	KindNumber:  "number",
	KindBool:    "bool",
	KindArray:   "array",
	KindObject:  "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ErrMalformedInput is returned by Decode when the input is not a single,
// syntactically valid JSON document.
var ErrMalformedInput = errors.New("malformed json input")

// Value is a decoded JSON value. The set of implementations is closed.
type Value interface {
	json.Marshaler
	// Kind reports the variant.
	Kind() Kind
	isValue()
}

// Valuer is implemented by types that can render themselves as a Value.
type Valuer interface {
	JSONValue() Value
}

type (
	// String is a JSON string.
	String string
	// Integer is a JSON number without fraction or exponent.
	Integer int64
	// Number is any other JSON number.
	Number float64
	// Bool is a JSON boolean.
	Bool bool
	// Array is an ordered JSON array.
	Array []Value
	// Object is a JSON object. Key order is not significant.
	Object map[string]Value
	// Null is the JSON null literal.
	Null struct{}
)

func (String) Kind() Kind  { return KindString }
func (Integer) Kind() Kind { return KindInteger }
func (Number) Kind() Kind  { return KindNumber }
func (Bool) Kind() Kind    { return KindBool }
func (Array) Kind() Kind   { return KindArray }
func (Object) Kind() Kind  { return KindObject }
func (Null) Kind() Kind    { return KindNull }

func (String) isValue()  {}
func (Integer) isValue() {}
func (Number) isValue()  {}
func (Bool) isValue()    {}
func (Array) isValue()   {}
func (Object) isValue()  {}
func (Null) isValue()    {}

func (v String) MarshalJSON() ([]byte, error)  { return Encode(v), nil }
func (v Integer) MarshalJSON() ([]byte, error) { return Encode(v), nil }
func (v Number) MarshalJSON() ([]byte, error)  { return Encode(v), nil }
func (v Bool) MarshalJSON() ([]byte, error)    { return Encode(v), nil }
func (v Array) MarshalJSON() ([]byte, error)   { return Encode(v), nil }
func (v Object) MarshalJSON() ([]byte, error)  { return Encode(v), nil }
func (v Null) MarshalJSON() ([]byte, error)    { return Encode(v), nil }

// JSONValue implements Valuer so that a Value converts to itself.
func (v String) JSONValue() Value  { return v }
func (v Integer) JSONValue() Value { return v }
func (v Number) JSONValue() Value  { return v }
func (v Bool) JSONValue() Value    { return v }
func (v Array) JSONValue() Value   { return v }
func (v Object) JSONValue() Value  { return v }
func (v Null) JSONValue() Value    { return v }

// Get returns the member stored under key.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o[key]
	return v, ok
}

// Has reports whether key is present, including when its value is null.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Lookup walks nested objects along path. It returns false as soon as a
// segment is missing or a non-object is encountered before the last segment.
func (o Object) Lookup(path ...string) (Value, bool) {
	var cur Value = o
	for _, key := range path {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// IsNull reports whether v is nil or the JSON null literal.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports structural equality. Arrays compare element-wise in order,
// objects compare by key set regardless of order. A nil Value equals Null.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Integer:
		y, ok := b.(Integer)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// Any wraps a Value so it can be used as a struct field with encoding/json.
// A zero Any marshals as null.
type Any struct {
	Value Value
}

// MarshalJSON implements json.Marshaler.
func (a Any) MarshalJSON() ([]byte, error) {
	if a.Value == nil {
		return []byte("null"), nil
	}
	return Encode(a.Value), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Any) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	a.Value = v
	return nil
}
