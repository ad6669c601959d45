package jsonvalue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrUnsupportedType is returned by From for Go values with no JSON form.
var ErrUnsupportedType = errors.New("unsupported type for json value")

// From converts a Go value into a Value. Supported inputs are strings, all
// integer and float kinds, bools, nil, slices and arrays of supported values,
// string-keyed maps of supported values, json.Number, Value and Valuer.
func From(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case Valuer:
		if out := v.JSONValue(); out != nil {
			return out, nil
		}
		return Null{}, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Integer(v), nil
	case int8:
		return Integer(v), nil
	case int16:
		return Integer(v), nil
	case int32:
		return Integer(v), nil
	case int64:
		return Integer(v), nil
	case uint:
		return fromUint(uint64(v)), nil
	case uint8:
		return Integer(v), nil
	case uint16:
		return Integer(v), nil
	case uint32:
		return Integer(v), nil
	case uint64:
		return fromUint(v), nil
	case float32:
		return Number(v), nil
	case float64:
		return Number(v), nil
	case json.Number:
		return decodeNumber(v)
	case []any:
		arr := make(Array, len(v))
		for i, elem := range v {
			ev, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(v))
		for k, elem := range v {
			ev, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	}
	return fromReflect(reflect.ValueOf(x))
}

// Of is like From but panics on unsupported input. It is meant for literals
// whose shape is fixed at compile time.
func Of(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Number(float64(u))
	}
	return Integer(int64(u))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return From(rv.Elem().Interface())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, nil
		}
		arr := make(Array, rv.Len())
		for i := range rv.Len() {
			ev, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, rv.Type().Key())
		}
		if rv.IsNil() {
			return Null{}, nil
		}
		obj := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			ev, err := From(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, rv.Interface())
}
