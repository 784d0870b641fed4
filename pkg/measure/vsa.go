package measure

import (
	"fmt"
	"math"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
)

// Vector signal analysis bounds
const (
	MinVSAMarker  = 1
	MaxVSAMarker  = 4
	MinSymbolRate = 25.0
	MaxSymbolRate = 600e6
)

const vsaOption = "K70"

// ConfigureVSASymbolRate sets the symbol rate of the demodulator
func ConfigureVSASymbolRate(s *session.Session, rate float64) error {
	if _, err := selector.ValidateRangeFloat(rate, MinSymbolRate, MaxSymbolRate, 2, "Symbol Rate"); err != nil {
		return err
	}
	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("VSA", vsaOption); err != nil {
			return err
		}
		return g.SetAttribute(selector.Empty, attribute.VSASymbolRate, attribute.Real(rate))
	})
}

// ReadVSABitstream reads the demodulated symbols shown in a symbol table
// window
func ReadVSABitstream(s *session.Session, win int) ([]int, error) {
	if _, err := selector.ValidateRange(win, MinWindow, MaxWindow, 2, "Window"); err != nil {
		return nil, err
	}

	var symbols []int
	err := s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("VSA", vsaOption); err != nil {
			return err
		}
		values, err := g.QueryFloats(fmt.Sprintf("TRAC%d:DATA? TRACE1", win))
		if err != nil {
			return err
		}
		symbols = make([]int, len(values))
		for i, v := range values {
			if v != math.Trunc(v) || v < 0 {
				return status.NoData("symbol %d: %g is not a symbol number", i, v)
			}
			symbols[i] = int(v)
		}
		return nil
	})
	return symbols, err
}

// ReadVSAConstellation reads the I/Q points of a constellation window
func ReadVSAConstellation(s *session.Session, win int, re, im []float64) (written, available int, err error) {
	if _, err := selector.ValidateRange(win, MinWindow, MaxWindow, 2, "Window"); err != nil {
		return 0, 0, err
	}

	err = s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("VSA", vsaOption); err != nil {
			return err
		}
		var err error
		written, available, err = g.ReadIQArray(fmt.Sprintf("TRAC%d:DATA? TRACE1", win), re, im)
		return err
	})
	return written, available, err
}

// ConfigureVSAMarker enables a marker and places it at a symbol position
func ConfigureVSAMarker(s *session.Session, win, marker int, enabled bool, position float64) error {
	w, err := window(win, 2)
	if err != nil {
		return err
	}
	m, err := selector.IndexIn("M", marker, MinVSAMarker, MaxVSAMarker, 3, "Marker")
	if err != nil {
		return err
	}

	sel := selector.New(w, m)
	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("VSA", vsaOption); err != nil {
			return err
		}
		if err := g.SetAttribute(sel, attribute.VSAMarkerEnabled, attribute.Bool(enabled)); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.VSAMarkerPosition, attribute.Real(position))
	})
}

// QueryVSAMarker reads a marker position and value. The position is
// returned even when the value query fails.
func QueryVSAMarker(s *session.Session, win, marker int) (x, y float64, err error) {
	w, err := window(win, 2)
	if err != nil {
		return 0, 0, err
	}
	m, err := selector.IndexIn("M", marker, MinVSAMarker, MaxVSAMarker, 3, "Marker")
	if err != nil {
		return 0, 0, err
	}

	sel := selector.New(w, m)
	err = s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("VSA", vsaOption); err != nil {
			return err
		}
		v, err := g.GetAttribute(sel, attribute.VSAMarkerPosition)
		if err != nil {
			return err
		}
		x = v.Real()

		v, err = g.GetAttribute(sel, attribute.VSAMarkerValue)
		if err != nil {
			return err
		}
		y = v.Real()
		return nil
	})
	return x, y, err
}
