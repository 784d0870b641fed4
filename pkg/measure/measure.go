// Package measure holds the measurement wrappers built on the session
// gateway. Every wrapper validates its arguments before taking the session
// lock, then runs its steps under one lock; a failing step ends the call
// and earlier steps stay applied.
//
// Parameter indices count the session as parameter 1, so the first
// argument after the session is parameter 2.
package measure

import (
	"github.com/dougsko/specand/pkg/selector"
)

// Window and trace bounds shared by the families
const (
	MinWindow = 1
	MaxWindow = 16
	MinTrace  = 1
	MaxTrace  = 6
)

// Statistic selects which statistic of a result is read
type Statistic int

const (
	StatisticMin Statistic = iota
	StatisticMax
	StatisticAverage
)

// Statistics are the named selector tokens of Statistic
var Statistics = selector.NewTokenTable("Stat", "Min", "Max", "Aver")

func window(w, paramIndex int) (selector.Component, error) {
	return selector.IndexIn("Win", w, MinWindow, MaxWindow, paramIndex, "Window")
}

func windowSelector(w, paramIndex int) (selector.Selector, error) {
	c, err := window(w, paramIndex)
	if err != nil {
		return selector.Empty, err
	}
	return selector.New(c), nil
}
