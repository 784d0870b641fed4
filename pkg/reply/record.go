package reply

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dougsko/specand/pkg/status"
)

// FieldKind is the declared type of a record field
type FieldKind int

const (
	FieldReal FieldKind = iota
	FieldInt
	FieldString
	FieldBool
)

// String returns the field kind name
func (k FieldKind) String() string {
	switch k {
	case FieldReal:
		return "real"
	case FieldInt:
		return "int"
	case FieldString:
		return "string"
	case FieldBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Field declares one position of a record
type Field struct {
	Name string
	Kind FieldKind
}

// Shape declares the fields of a record, in reply order
type Shape []Field

// NewShape builds a shape from fields
func NewShape(fields ...Field) Shape {
	return Shape(fields)
}

// Reals declares one real field per name
func Reals(names ...string) Shape {
	s := make(Shape, len(names))
	for i, n := range names {
		s[i] = Field{Name: n, Kind: FieldReal}
	}
	return s
}

func (s Shape) index(name string) int {
	for i, f := range s {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Record is one decoded record. Values are held in their declared kind.
type Record struct {
	shape  Shape
	values []interface{}
}

// Len returns the field count
func (r Record) Len() int { return len(r.values) }

// Value returns the field at position i
func (r Record) Value(i int) interface{} { return r.values[i] }

// Real returns a real or int field by name; zero if absent
func (r Record) Real(name string) float64 {
	i := r.shape.index(name)
	if i < 0 {
		return 0
	}
	switch v := r.values[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Int returns an int field by name; zero if absent
func (r Record) Int(name string) int64 {
	i := r.shape.index(name)
	if i < 0 {
		return 0
	}
	if v, ok := r.values[i].(int64); ok {
		return v
	}
	return 0
}

// Str returns a string field by name; empty if absent
func (r Record) Str(name string) string {
	i := r.shape.index(name)
	if i < 0 {
		return ""
	}
	if v, ok := r.values[i].(string); ok {
		return v
	}
	return fmt.Sprint(r.values[i])
}

// Bool returns a bool field by name; false if absent
func (r Record) Bool(name string) bool {
	i := r.shape.index(name)
	if i < 0 {
		return false
	}
	v, _ := r.values[i].(bool)
	return v
}

// RecordScanner yields typed records from a reply, one shape at a time.
// Usage mirrors bufio.Scanner:
//
//	sc := reply.NewRecordScanner(data, shape)
//	for sc.Scan() {
//		rec := sc.Record()
//	}
//	if err := sc.Err(); err != nil { ... }
type RecordScanner struct {
	tok    *Tokenizer
	shape  Shape
	record Record
	count  int
	err    error
}

// NewRecordScanner creates a scanner; an empty shape is an error on Scan
func NewRecordScanner(data []byte, shape Shape) *RecordScanner {
	return &RecordScanner{tok: NewTokenizer(data), shape: shape}
}

// Scan decodes the next record
func (s *RecordScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	if len(s.shape) == 0 {
		s.err = status.InvalidParameter("record shape has no fields")
		return false
	}

	values := make([]interface{}, len(s.shape))
	for i, f := range s.shape {
		text, ok := s.tok.Next()
		if !ok {
			if i > 0 {
				s.err = status.NoData("partial record %d: %d of %d fields", s.count, i, len(s.shape))
			}
			return false
		}

		v, err := convert(f.Kind, text)
		if err != nil {
			s.err = status.NoData("record %d field %s: %v", s.count, f.Name, err)
			return false
		}
		values[i] = v
	}

	s.record = Record{shape: s.shape, values: values}
	s.count++
	return true
}

// Record returns the record decoded by the last successful Scan
func (s *RecordScanner) Record() Record { return s.record }

// Err returns the first decoding error
func (s *RecordScanner) Err() error { return s.err }

// Reset restarts the scan from the first record
func (s *RecordScanner) Reset() {
	s.tok.Reset()
	s.record = Record{}
	s.count = 0
	s.err = nil
}

// ParseRecords decodes every record of a reply
func ParseRecords(data []byte, shape Shape) ([]Record, error) {
	sc := NewRecordScanner(data, shape)
	var records []Record
	for sc.Scan() {
		records = append(records, sc.Record())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ParseFloats decodes a comma-separated list of reals
func ParseFloats(data []byte) ([]float64, error) {
	tok := NewTokenizer(data)
	var values []float64
	for {
		text, ok := tok.Next()
		if !ok {
			return values, nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, status.NoData("value %d: %q is not a number", len(values), text)
		}
		values = append(values, v)
	}
}

// ParseInts decodes a comma-separated list of integers
func ParseInts(data []byte) ([]int, error) {
	tok := NewTokenizer(data)
	var values []int
	for {
		text, ok := tok.Next()
		if !ok {
			return values, nil
		}
		v, err := convert(FieldInt, text)
		if err != nil {
			return nil, status.NoData("value %d: %v", len(values), err)
		}
		values = append(values, int(v.(int64)))
	}
}

func convert(kind FieldKind, text string) (interface{}, error) {
	switch kind {
	case FieldReal:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return v, nil
	case FieldInt:
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return v, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("%q is not an integer", text)
		}
		return int64(f), nil
	case FieldBool:
		switch strings.ToUpper(text) {
		case "1", "ON":
			return true, nil
		case "0", "OFF":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", text)
	default:
		return Unquote(text), nil
	}
}
