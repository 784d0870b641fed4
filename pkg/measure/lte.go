package measure

import (
	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
)

// LTE downlink bounds
const (
	MinSubframe   = 0
	MaxSubframe   = 9
	MinAllocation = 0
	MaxAllocation = 110
	MinRBCount    = 1
	MaxRBCount    = 110
	MinRBOffset   = 0
	MaxRBOffset   = 109
	MinAllocPower = -80.0
	MaxAllocPower = 10.0
)

// LTEModulation is the PDSCH modulation of an allocation
type LTEModulation int

const (
	LTEModulationQPSK LTEModulation = iota
	LTEModulationQAM16
	LTEModulationQAM64
	LTEModulationQAM256
)

// LTEModulations are the instrument tokens of LTEModulation
var LTEModulations = selector.NewTokenTable("Modulation", "QPSK", "QAM16", "QAM64", "QAM256")

// lteOptions are the LTE downlink and uplink applications
var lteOptions = []string{"K100", "K101", "K102", "K104"}

// ConfigureLTEDownlinkPDSCHAllocation configures one PDSCH allocation of a
// subframe
func ConfigureLTEDownlinkPDSCHAllocation(s *session.Session, subframe, allocation int, modulation LTEModulation,
	rbCount, rbOffset int, power float64) error {
	sf, err := selector.IndexIn("SFR", subframe, MinSubframe, MaxSubframe, 2, "Subframe")
	if err != nil {
		return err
	}
	al, err := selector.IndexIn("AL", allocation, MinAllocation, MaxAllocation, 3, "Allocation")
	if err != nil {
		return err
	}
	token, err := LTEModulations.Token(int(modulation), 4, "Modulation")
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRange(rbCount, MinRBCount, MaxRBCount, 5, "Number Of RBs"); err != nil {
		return err
	}
	if _, err := selector.ValidateRange(rbOffset, MinRBOffset, MaxRBOffset, 6, "Offset RB"); err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(power, MinAllocPower, MaxAllocPower, 7, "Power"); err != nil {
		return err
	}

	sel := selector.New(sf, al)
	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("LTE downlink", lteOptions...); err != nil {
			return err
		}
		if err := g.SetAttribute(sel, attribute.LTEDownlinkAllocModulation, attribute.String(token)); err != nil {
			return err
		}
		if err := g.SetAttribute(sel, attribute.LTEDownlinkAllocRBCount, attribute.Int(int64(rbCount))); err != nil {
			return err
		}
		if err := g.SetAttribute(sel, attribute.LTEDownlinkAllocRBOffset, attribute.Int(int64(rbOffset))); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.LTEDownlinkAllocPower, attribute.Real(power))
	})
}

// ConfigureLTEDownlinkSubframeAllocations sets the number of allocations in
// a subframe
func ConfigureLTEDownlinkSubframeAllocations(s *session.Session, subframe, count int) error {
	sf, err := selector.IndexIn("SFR", subframe, MinSubframe, MaxSubframe, 2, "Subframe")
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRange(count, 1, MaxAllocation+1, 3, "Number Of Allocations"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("LTE downlink", lteOptions...); err != nil {
			return err
		}
		return g.SetAttribute(selector.New(sf), attribute.LTEDownlinkSubframeAllocCount, attribute.Int(int64(count)))
	})
}

// QueryLTEResultEVM reads the EVM over all carriers (percent)
func QueryLTEResultEVM(s *session.Session, stat Statistic) (float64, error) {
	return queryLTEResult(s, attribute.LTEResultEVMAll, stat)
}

// QueryLTEResultFrequencyError reads the carrier frequency error (Hz)
func QueryLTEResultFrequencyError(s *session.Session, stat Statistic) (float64, error) {
	return queryLTEResult(s, attribute.LTEResultFrequencyError, stat)
}

func queryLTEResult(s *session.Session, id string, stat Statistic) (float64, error) {
	c, err := Statistics.Component(int(stat), 2, "Statistic")
	if err != nil {
		return 0, err
	}

	var result float64
	err = s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("LTE results", lteOptions...); err != nil {
			return err
		}
		v, err := g.GetAttribute(selector.New(c), id)
		if err != nil {
			return err
		}
		result = v.Real()
		return nil
	})
	return result, err
}
