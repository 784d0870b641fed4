package measure

import (
	"strconv"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/reply"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
)

// GSM bounds
const (
	MinSlot = 0
	MaxSlot = 7
)

// LimitReference selects absolute or relative spectrum limits
type LimitReference int

const (
	LimitAbsolute LimitReference = iota
	LimitRelative
)

// LimitReferences are the named selector tokens of LimitReference
var LimitReferences = selector.NewTokenTable("Ref", "ABS", "REL")

const gsmOption = "K10"

// SpectrumListEntry is one offset frequency of the modulation spectrum list
type SpectrumListEntry struct {
	Index      int
	Frequency1 float64
	Frequency2 float64
	Level      float64
	Limit      float64
	Reference  LimitReference
	Passed     bool
}

var spectrumListShape = reply.NewShape(
	reply.Field{Name: "Index", Kind: reply.FieldInt},
	reply.Field{Name: "Frequency1", Kind: reply.FieldReal},
	reply.Field{Name: "Frequency2", Kind: reply.FieldReal},
	reply.Field{Name: "Level", Kind: reply.FieldReal},
	reply.Field{Name: "Limit", Kind: reply.FieldReal},
	reply.Field{Name: "Reference", Kind: reply.FieldString},
	reply.Field{Name: "Status", Kind: reply.FieldInt},
)

// ConfigureGSMSpectrumLimitReference switches the absolute or relative
// spectrum limit check of a window
func ConfigureGSMSpectrumLimitReference(s *session.Session, win int, ref LimitReference, enabled bool) error {
	w, err := window(win, 2)
	if err != nil {
		return err
	}
	r, err := LimitReferences.Component(int(ref), 3, "Limit Reference")
	if err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("GSM", gsmOption); err != nil {
			return err
		}
		return g.SetAttribute(selector.New(w, r), attribute.GSMSpectrumLimitState, attribute.Bool(enabled))
	})
}

// ConfigureGSMSlotToMeasure selects the slot evaluated by the burst
// measurements
func ConfigureGSMSlotToMeasure(s *session.Session, slot int) error {
	if _, err := selector.ValidateRange(slot, MinSlot, MaxSlot, 2, "Slot"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("GSM", gsmOption); err != nil {
			return err
		}
		return g.SetAttribute(selector.Empty, attribute.GSMSlotToMeasure, attribute.Int(int64(slot)))
	})
}

// ReadGSMPowerVsTime reads the power vs time trace of all bursts
func ReadGSMPowerVsTime(s *session.Session, dst []float64) (written, available int, err error) {
	err = s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("GSM", gsmOption); err != nil {
			return err
		}
		var err error
		written, available, err = g.ReadFloatArray("FETC:BURS:PVTT:ALL?", dst)
		return err
	})
	return written, available, err
}

// ReadGSMModulationSpectrumList reads the modulation spectrum list
// evaluation. The list is ASCII regardless of the data format.
func ReadGSMModulationSpectrumList(s *session.Session) ([]SpectrumListEntry, error) {
	var entries []SpectrumListEntry
	err := s.Do(func(g *session.Gateway) error {
		if err := g.Capabilities().Require("GSM", gsmOption); err != nil {
			return err
		}
		records, err := g.ReadRecords("FETC:SPEC:MOD:ALL?", spectrumListShape)
		if err != nil {
			return err
		}

		entries = make([]SpectrumListEntry, 0, len(records))
		for _, rec := range records {
			ref, ok := LimitReferences.Lookup(rec.Str("Reference"))
			if !ok {
				return status.NoData("modulation spectrum entry %d: unknown reference %q",
					rec.Int("Index"), rec.Str("Reference"))
			}
			entries = append(entries, SpectrumListEntry{
				Index:      int(rec.Int("Index")),
				Frequency1: rec.Real("Frequency1"),
				Frequency2: rec.Real("Frequency2"),
				Level:      rec.Real("Level"),
				Limit:      rec.Real("Limit"),
				Reference:  LimitReference(ref),
				Passed:     rec.Int("Status") == 0,
			})
		}
		return nil
	})
	return entries, err
}

// String renders the reference token
func (r LimitReference) String() string {
	if token, err := LimitReferences.Token(int(r), 0, ""); err == nil {
		return token
	}
	return strconv.Itoa(int(r))
}
