package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Value is the closed set of serializable payload variants. Payloads built
// from Values are checked at compile time instead of relying on any-typed
// maps surviving a round trip through encoding/json.
type Value interface {
	appendTo(buf *bytes.Buffer) error
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number kept in its source representation.
type Number string

// String is a JSON string.
type String string

// Array is an ordered JSON array.
type Array []Value

// Object is a string-keyed JSON object; keys are sorted at encoding time.
type Object map[string]Value

func (Null) appendTo(buf *bytes.Buffer) error {
	buf.WriteString("null")
	return nil
}

func (b Bool) appendTo(buf *bytes.Buffer) error {
	buf.WriteString(strconv.FormatBool(bool(b)))
	return nil
}

func (n Number) appendTo(buf *bytes.Buffer) error {
	buf.WriteString(string(n))
	return nil
}

func (s String) appendTo(buf *bytes.Buffer) error {
	return appendJSONString(buf, string(s))
}

func (a Array) appendTo(buf *bytes.Buffer) error {
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := elem.appendTo(buf); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func (o Object) appendTo(buf *bytes.Buffer) error {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendJSONString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := o[k].appendTo(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// Int builds a Number from an integer.
func Int(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// Float builds a Number from a float using the shortest round-trip form.
func Float(f float64) Number {
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Encode returns the canonical encoding of a typed Value.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		v = Null{}
	}
	var buf bytes.Buffer
	if err := v.appendTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashValue returns the SHA-256 hex digest of the canonical encoding of v.
func HashValue(v Value) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// FromAny converts decoded JSON into the closed Value set. Non-JSON types are
// rejected so the conversion cannot silently lose information.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []any:
		arr := make(Array, len(t))
		for i, elem := range t {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = cv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, elem := range t {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = cv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("canonical: value of type %T is not representable", v)
	}
}
