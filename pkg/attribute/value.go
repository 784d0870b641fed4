package attribute

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/transport"
)

// Kind is the declared value kind of an attribute
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindReal
	KindString
	KindBinary
)

// String returns the table name of the kind
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ParseKind parses a table kind name
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "real", "float", "double":
		return KindReal, nil
	case "string":
		return KindString, nil
	case "binary", "block":
		return KindBinary, nil
	default:
		return 0, fmt.Errorf("unknown attribute kind %q", name)
	}
}

// UnmarshalYAML reads a kind from its table name
func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML writes a kind as its table name
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Value is a semantic attribute value tagged with its kind
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
}

// Bool builds a boolean value
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int builds an integer value
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Real builds a real value
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// String builds a string value
func String(v string) Value { return Value{kind: KindString, s: v} }

// Binary builds an opaque binary value
func Binary(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBinary, raw: cp}
}

// Kind returns the value kind; zero for the zero Value
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload
func (v Value) Int() int64 { return v.i }

// Real returns the real payload
func (v Value) Real() float64 { return v.f }

// Str returns the string payload
func (v Value) Str() string { return v.s }

// Bytes returns the binary payload
func (v Value) Bytes() []byte { return v.raw }

// Interface returns the payload as a plain Go value
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindReal:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		return v.raw
	default:
		return nil
	}
}

// String renders the value for logs
func (v Value) String() string {
	switch v.kind {
	case KindBinary:
		return fmt.Sprintf("<%d bytes>", len(v.raw))
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// Equal compares kind and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBinary:
		return string(v.raw) == string(o.raw)
	default:
		return v.Interface() == o.Interface()
	}
}

// FromText converts user text (socket or HTTP input) into a value of the
// given kind
func FromText(kind Kind, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case KindBool:
		switch strings.ToUpper(text) {
		case "1", "ON", "TRUE":
			return Bool(true), nil
		case "0", "OFF", "FALSE":
			return Bool(false), nil
		}
		return Value{}, status.InvalidParameter("%q is not a boolean", text)
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, status.InvalidParameter("%q is not an integer", text)
		}
		return Int(n), nil
	case KindReal:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, status.InvalidParameter("%q is not a real number", text)
		}
		return Real(f), nil
	case KindString:
		return String(text), nil
	case KindBinary:
		return Binary([]byte(text)), nil
	default:
		return Value{}, status.InvalidParameter("unknown value kind %d", kind)
	}
}

// format renders a value as a SCPI parameter
func format(a Attribute, v Value) string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "ON"
		}
		return "OFF"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'G', -1, 64)
	case KindString:
		if a.Quoted {
			return "'" + v.s + "'"
		}
		return v.s
	case KindBinary:
		return string(transport.EncodeBlock(v.raw))
	default:
		return ""
	}
}

// parse converts an instrument reply into a value of the given kind
func parse(kind Kind, reply []byte) (Value, error) {
	if kind == KindBinary {
		payload, err := transport.ParseBlock(reply)
		if err != nil {
			return Value{}, status.NoData("malformed block reply: %v", err)
		}
		return Binary(payload), nil
	}

	text := strings.TrimSpace(string(reply))
	if text == "" {
		return Value{}, status.NoData("empty reply")
	}

	switch kind {
	case KindBool:
		switch strings.ToUpper(text) {
		case "1", "ON":
			return Bool(true), nil
		case "0", "OFF":
			return Bool(false), nil
		}
	case KindInt:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Int(n), nil
		}
		// some firmware answers integer settings in exponent form
		if f, err := strconv.ParseFloat(text, 64); err == nil && f == math.Trunc(f) {
			return Int(int64(f)), nil
		}
	case KindReal:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Real(f), nil
		}
	case KindString:
		return String(unquote(text)), nil
	}

	return Value{}, status.NoData("malformed %s reply %q", kind, text)
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
