package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Decode parses exactly one JSON document. Leading and trailing whitespace
// is allowed, anything else after the document is not. Errors wrap
// ErrMalformedInput.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrMalformedInput)
	}
	return fromDecoded(raw)
}

// DecodeString is Decode for string input.
func DecodeString(s string) (Value, error) {
	return Decode([]byte(s))
}

func fromDecoded(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return decodeNumber(x)
	case string:
		return String(x), nil
	case []any:
		arr := make(Array, len(x))
		for i, elem := range x {
			v, err := fromDecoded(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(x))
		for k, elem := range x {
			v, err := fromDecoded(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	}
	// encoding/json with UseNumber produces no other types.
	return String(fmt.Sprint(raw)), nil
}

// decodeNumber applies the integer-before-float precedence. A number beyond
// the float64 range is rejected rather than turned into an infinity, which
// has no JSON form.
func decodeNumber(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return Integer(i), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: number %s: %v", ErrMalformedInput, n, err)
	}
	return Number(f), nil
}

// Encode renders v as compact JSON. It never fails: object keys are sorted,
// integral Numbers keep a ".0" suffix so they decode back to Number, and
// non-finite Numbers render as null.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, v)
	return buf.Bytes()
}

// EncodeString is Encode returning a string.
func EncodeString(v Value) string {
	return string(Encode(v))
}

func encodeTo(buf *bytes.Buffer, v Value) {
	switch x := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		writeString(buf, string(x))
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Number:
		buf.WriteString(formatNumber(float64(x)))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeTo(buf, elem)
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(x)) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			encodeTo(buf, x[k])
		}
		buf.WriteByte('}')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	buf.Truncate(buf.Len() - 1)
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
