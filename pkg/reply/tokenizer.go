// Package reply decodes comma-separated ASCII instrument replies into
// tokens and typed records.
package reply

import (
	"strings"
)

// Tokenizer walks the fields of a comma-separated reply. Separators inside
// single or double quotes do not split. The sequence is finite and can be
// restarted with Reset.
type Tokenizer struct {
	data string
	pos  int
	done bool
}

// NewTokenizer creates a tokenizer over a reply. Surrounding whitespace and
// the line terminator are ignored.
func NewTokenizer(data []byte) *Tokenizer {
	t := &Tokenizer{data: strings.TrimSpace(string(data))}
	t.Reset()
	return t
}

// Reset rewinds to the first field
func (t *Tokenizer) Reset() {
	t.pos = 0
	t.done = t.data == ""
}

// Next returns the next field with whitespace trimmed. ok is false once the
// reply is exhausted.
func (t *Tokenizer) Next() (field string, ok bool) {
	if t.done {
		return "", false
	}

	var quote byte
	start := t.pos
	for i := t.pos; i < len(t.data); i++ {
		c := t.data[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			t.pos = i + 1
			return strings.TrimSpace(t.data[start:i]), true
		}
	}

	t.done = true
	t.pos = len(t.data)
	return strings.TrimSpace(t.data[start:]), true
}

// All returns the remaining fields
func (t *Tokenizer) All() []string {
	var fields []string
	for {
		f, ok := t.Next()
		if !ok {
			return fields
		}
		fields = append(fields, f)
	}
}

// Count returns the total number of fields without moving the cursor
func (t *Tokenizer) Count() int {
	saved := *t
	t.Reset()
	n := len(t.All())
	*t = saved
	return n
}

// Split is a one-shot convenience over a Tokenizer
func Split(data []byte) []string {
	return NewTokenizer(data).All()
}

// Unquote strips one pair of matching quotes
func Unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
