package selector

import (
	"strings"

	"github.com/dougsko/specand/pkg/status"
)

// TokenTable maps an enumeration to instrument tokens by position. The
// table is also the enumeration's range bound: valid values are
// [0, Len()-1], so the mapping and its validation cannot disagree.
type TokenTable struct {
	slot   string
	tokens []string
}

// NewTokenTable builds a table for the given selector slot
func NewTokenTable(slot string, tokens ...string) *TokenTable {
	cp := make([]string, len(tokens))
	copy(cp, tokens)
	return &TokenTable{slot: slot, tokens: cp}
}

// Slot returns the selector slot the tokens fill
func (t *TokenTable) Slot() string {
	return t.slot
}

// Len returns the number of enumeration values
func (t *TokenTable) Len() int {
	return len(t.tokens)
}

// Tokens returns a copy of the tokens in enumeration order
func (t *TokenTable) Tokens() []string {
	cp := make([]string, len(t.tokens))
	copy(cp, t.tokens)
	return cp
}

// Token returns the token for value, or an InvalidParameterValue failure
// naming the parameter
func (t *TokenTable) Token(value, paramIndex int, paramName string) (string, error) {
	if value < 0 || value >= len(t.tokens) {
		return "", status.InvalidValue(paramIndex, paramName, "no %s token for value %d", t.slot, value)
	}
	return t.tokens[value], nil
}

// Component returns the named selector component for value
func (t *TokenTable) Component(value, paramIndex int, paramName string) (Component, error) {
	token, err := t.Token(value, paramIndex, paramName)
	if err != nil {
		return Component{}, err
	}
	return Named(t.slot, token), nil
}

// Lookup maps an instrument token back to its enumeration value. SCPI is
// case-insensitive, so is the lookup.
func (t *TokenTable) Lookup(token string) (int, bool) {
	token = strings.TrimSpace(token)
	for i, tok := range t.tokens {
		if strings.EqualFold(tok, token) {
			return i, true
		}
	}
	return 0, false
}
