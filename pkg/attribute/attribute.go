// Package attribute holds the table that maps logical attribute ids to SCPI
// command templates, value kinds and selector slots.
package attribute

import (
	"fmt"
	"strings"

	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/status"
)

// Access restricts the direction an attribute may be used in
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
	WriteOnly
)

// String returns the table name of the access mode
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	default:
		return "rw"
	}
}

// UnmarshalYAML reads "rw", "ro" or "wo"
func (a *Access) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rw":
		*a = ReadWrite
	case "ro":
		*a = ReadOnly
	case "wo":
		*a = WriteOnly
	default:
		return fmt.Errorf("unknown attribute access %q", name)
	}
	return nil
}

// MarshalYAML writes the table name
func (a Access) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// Slot declares one selector position of an attribute. Indexed slots are
// range checked against [Min, Max] when Max > 0; token slots list the
// accepted tokens.
type Slot struct {
	Name   string   `yaml:"name"`
	Min    int      `yaml:"min"`
	Max    int      `yaml:"max"`
	Tokens []string `yaml:"tokens,omitempty"`
}

// Attribute describes one logical instrument setting or result.
//
// Command is a SCPI header template; "{Name}" placeholders are filled from
// the selector by slot position. An empty selector leaves every suffix empty,
// which the instrument reads as its default (current) instance.
type Attribute struct {
	ID      string   `yaml:"id"`
	Command string   `yaml:"command"`
	Kind    Kind     `yaml:"kind"`
	Access  Access   `yaml:"access"`
	Slots   []Slot   `yaml:"slots,omitempty"`
	Enum    []string `yaml:"enum,omitempty"`
	Quoted  bool     `yaml:"quoted,omitempty"`
}

// Header expands the command template for a selector. Slot failures name
// the selector position counting the session as parameter 1, so the first
// component is parameter 2.
func (a Attribute) Header(sel selector.Selector) (string, error) {
	if sel.Len() > len(a.Slots) {
		return "", status.InvalidParameter("%s: selector %q has %d components, attribute takes %d",
			a.ID, sel.String(), sel.Len(), len(a.Slots))
	}

	header := a.Command
	for i, slot := range a.Slots {
		value := ""
		if i < sel.Len() {
			v, err := slot.fill(a.ID, i+2, sel.Component(i))
			if err != nil {
				return "", err
			}
			value = v
		}
		header = strings.ReplaceAll(header, "{"+slot.Name+"}", value)
	}
	return header, nil
}

func (s Slot) fill(id string, paramIndex int, c selector.Component) (string, error) {
	if c.IsNamed() {
		if len(s.Tokens) == 0 {
			return "", status.InvalidParameter("%s: slot %s takes an index, got token %q", id, s.Name, c.Token)
		}
		for _, tok := range s.Tokens {
			if strings.EqualFold(tok, c.Token) {
				return c.Token, nil
			}
		}
		return "", status.InvalidValue(paramIndex, s.Name, "%s: token %q not one of %v", id, c.Token, s.Tokens)
	}

	if len(s.Tokens) > 0 {
		return "", status.InvalidParameter("%s: slot %s takes a token, got %q", id, s.Name, c.String())
	}
	if !strings.EqualFold(c.Prefix, s.Name) {
		return "", status.InvalidParameter("%s: selector component %q does not match slot %s", id, c.String(), s.Name)
	}
	if s.Max > 0 && (c.Index < s.Min || c.Index > s.Max) {
		return "", status.Range(paramIndex, s.Name, "%s: %s%d not in [%d, %d]", id, s.Name, c.Index, s.Min, s.Max)
	}
	return c.Value(), nil
}

// CheckSet validates a value against the declared kind, access and enum
func (a Attribute) CheckSet(v Value) error {
	if a.Access == ReadOnly {
		return status.InvalidParameter("%s is read-only", a.ID)
	}
	if v.Kind() != a.Kind {
		return status.InvalidParameter("%s takes a %s value, got %s", a.ID, a.Kind, v.Kind())
	}
	if len(a.Enum) > 0 {
		for _, e := range a.Enum {
			if strings.EqualFold(e, v.Str()) {
				return nil
			}
		}
		return status.InvalidValue(0, a.ID, "%q not one of %v", v.Str(), a.Enum)
	}
	return nil
}

// CheckGet validates that the attribute can be queried
func (a Attribute) CheckGet() error {
	if a.Access == WriteOnly {
		return status.InvalidParameter("%s is write-only", a.ID)
	}
	return nil
}

// SetCommand renders the full SCPI set command
func (a Attribute) SetCommand(header string, v Value) string {
	return header + " " + format(a, v)
}

// QueryCommand renders the SCPI query for a header
func (a Attribute) QueryCommand(header string) string {
	return header + "?"
}

// ParseReply converts the instrument reply to a value of the declared kind
func (a Attribute) ParseReply(reply []byte) (Value, error) {
	return parse(a.Kind, reply)
}

func (a Attribute) validate() error {
	if a.ID == "" {
		return fmt.Errorf("attribute without id")
	}
	if a.Command == "" {
		return fmt.Errorf("attribute %s: empty command", a.ID)
	}
	if a.Kind < KindBool || a.Kind > KindBinary {
		return fmt.Errorf("attribute %s: invalid kind", a.ID)
	}
	if len(a.Enum) > 0 && a.Kind != KindString {
		return fmt.Errorf("attribute %s: enum requires string kind", a.ID)
	}
	for _, s := range a.Slots {
		if s.Name == "" {
			return fmt.Errorf("attribute %s: unnamed slot", a.ID)
		}
		if !strings.Contains(a.Command, "{"+s.Name+"}") {
			return fmt.Errorf("attribute %s: slot %s not referenced by command", a.ID, s.Name)
		}
	}

	rest := a.Command
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open:], "}")
		if end < 0 {
			return fmt.Errorf("attribute %s: unterminated placeholder", a.ID)
		}
		name := rest[open+1 : open+end]
		if !a.hasSlot(name) {
			return fmt.Errorf("attribute %s: placeholder {%s} has no slot", a.ID, name)
		}
		rest = rest[open+end+1:]
	}
	return nil
}

func (a Attribute) hasSlot(name string) bool {
	for _, s := range a.Slots {
		if s.Name == name {
			return true
		}
	}
	return false
}
