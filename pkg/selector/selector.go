// Package selector renders repeated-capability locations such as window,
// trace and marker indices into the instrument's selector syntax ("Win1,TR2").
package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dougsko/specand/pkg/status"
)

// Component is one scoped part of a selector: either an indexed repeated
// capability ("Win", 1) or a named token taken from an enumeration ("Aver").
type Component struct {
	Prefix string
	Index  int
	Token  string
	named  bool
}

// Index builds an indexed component rendered as "<prefix><index>"
func Index(prefix string, index int) Component {
	return Component{Prefix: prefix, Index: index}
}

// Named builds a token component. slot names the position for diagnostics;
// only the token is rendered.
func Named(slot, token string) Component {
	return Component{Prefix: slot, Token: token, named: true}
}

// IsNamed reports whether the component carries a token instead of an index
func (c Component) IsNamed() bool {
	return c.named
}

// Value returns the text substituted into a command template
func (c Component) Value() string {
	if c.named {
		return c.Token
	}
	return strconv.Itoa(c.Index)
}

// String renders the component in selector syntax
func (c Component) String() string {
	if c.named {
		return c.Token
	}
	return c.Prefix + strconv.Itoa(c.Index)
}

// Render joins components with commas. No components means no selector:
// the call acts on the instrument's current global context.
func Render(components ...Component) string {
	if len(components) == 0 {
		return ""
	}
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Selector is an immutable, ordered set of components
type Selector struct {
	components []Component
}

// Empty is the selector for the current global context
var Empty = Selector{}

// New builds a selector from components
func New(components ...Component) Selector {
	cp := make([]Component, len(components))
	copy(cp, components)
	return Selector{components: cp}
}

// Len returns the number of components
func (s Selector) Len() int {
	return len(s.components)
}

// IsEmpty reports whether the selector addresses the global context
func (s Selector) IsEmpty() bool {
	return len(s.components) == 0
}

// Component returns the i-th component
func (s Selector) Component(i int) Component {
	return s.components[i]
}

// Components returns a copy of the components
func (s Selector) Components() []Component {
	cp := make([]Component, len(s.components))
	copy(cp, s.components)
	return cp
}

// String renders the selector
func (s Selector) String() string {
	return Render(s.components...)
}

// Parse reads selector syntax back into components. A part with a trailing
// number becomes an indexed component, anything else a named token.
func Parse(text string) (Selector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Empty, nil
	}

	parts := strings.Split(text, ",")
	components := make([]Component, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Empty, status.InvalidParameter("selector %q: empty component at position %d", text, i+1)
		}

		cut := len(part)
		for cut > 0 && part[cut-1] >= '0' && part[cut-1] <= '9' {
			cut--
		}
		if cut == len(part) {
			components = append(components, Named("", part))
			continue
		}
		if cut == 0 {
			return Empty, status.InvalidParameter("selector %q: component %q has no prefix", text, part)
		}

		index, err := strconv.Atoi(part[cut:])
		if err != nil {
			return Empty, status.InvalidParameter("selector %q: %v", text, err)
		}
		components = append(components, Index(part[:cut], index))
	}

	return New(components...), nil
}

// MustParse is Parse for static selectors in tests and tables
func MustParse(text string) Selector {
	s, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("selector: %v", err))
	}
	return s
}
