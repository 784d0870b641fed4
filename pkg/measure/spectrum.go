package measure

import (
	"fmt"
	"time"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
)

// Spectrum analyzer bounds
const (
	MinFrequency      = 0.0
	MaxFrequency      = 110e9
	MinSweepTime      = 1e-6
	MaxSweepTime      = 16000.0
	MinReferenceLevel = -130.0
	MaxReferenceLevel = 30.0
	MinMarker         = 1
	MaxMarker         = 16
)

// TraceMode is the detector history of a trace
type TraceMode int

const (
	TraceModeClearWrite TraceMode = iota
	TraceModeAverage
	TraceModeMaxHold
	TraceModeMinHold
	TraceModeView
	TraceModeBlank
)

// TraceModes are the instrument tokens of TraceMode
var TraceModes = selector.NewTokenTable("Mode", "WRIT", "AVER", "MAXH", "MINH", "VIEW", "BLAN")

// Mode is the measurement application
type Mode int

const (
	ModeSpectrum Mode = iota
	ModeLTE
	ModeGSM
	ModeVSA
	ModeIQ
)

// Modes are the INST:SEL tokens of Mode
var Modes = selector.NewTokenTable("Mode", "SAN", "LTE", "GSM", "DDEM", "IQ")

// SelectMode switches the measurement application
func SelectMode(s *session.Session, mode Mode) error {
	token, err := Modes.Token(int(mode), 2, "Mode")
	if err != nil {
		return err
	}
	return s.Do(func(g *session.Gateway) error {
		return g.SetAttribute(selector.Empty, attribute.InstrumentMode, attribute.String(token))
	})
}

// ConfigureFrequencyCenterSpan sets center frequency and span of a window
func ConfigureFrequencyCenterSpan(s *session.Session, win int, center, span float64) error {
	sel, err := windowSelector(win, 2)
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(center, MinFrequency, MaxFrequency, 3, "Center Frequency"); err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(span, MinFrequency, MaxFrequency, 4, "Span"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.SetAttribute(sel, attribute.FrequencyCenter, attribute.Real(center)); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.FrequencySpan, attribute.Real(span))
	})
}

// ConfigureSweepTime sets the sweep time coupling and value. The value is
// written even when auto is on; the instrument ignores it then.
func ConfigureSweepTime(s *session.Session, win int, auto bool, sweepTime float64) error {
	sel, err := windowSelector(win, 2)
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(sweepTime, MinSweepTime, MaxSweepTime, 4, "Sweep Time"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.SetAttribute(sel, attribute.SweepTimeAuto, attribute.Bool(auto)); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.SweepTime, attribute.Real(sweepTime))
	})
}

// ConfigureReferenceLevel sets the reference level of a window in dBm
func ConfigureReferenceLevel(s *session.Session, win int, level float64) error {
	sel, err := windowSelector(win, 2)
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(level, MinReferenceLevel, MaxReferenceLevel, 3, "Reference Level"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		return g.SetAttribute(sel, attribute.ReferenceLevel, attribute.Real(level))
	})
}

// ConfigureTraceMode sets the mode of one trace
func ConfigureTraceMode(s *session.Session, win, trace int, mode TraceMode) error {
	w, err := window(win, 2)
	if err != nil {
		return err
	}
	tr, err := selector.IndexIn("TR", trace, MinTrace, MaxTrace, 3, "Trace")
	if err != nil {
		return err
	}
	token, err := TraceModes.Token(int(mode), 4, "Trace Mode")
	if err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		return g.SetAttribute(selector.New(w, tr), attribute.TraceMode, attribute.String(token))
	})
}

// QueryTraceMode reads the mode of one trace
func QueryTraceMode(s *session.Session, win, trace int) (TraceMode, error) {
	w, err := window(win, 2)
	if err != nil {
		return 0, err
	}
	tr, err := selector.IndexIn("TR", trace, MinTrace, MaxTrace, 3, "Trace")
	if err != nil {
		return 0, err
	}

	var mode TraceMode
	err = s.Do(func(g *session.Gateway) error {
		v, err := g.GetAttribute(selector.New(w, tr), attribute.TraceMode)
		if err != nil {
			return err
		}
		i, ok := TraceModes.Lookup(v.Str())
		if !ok {
			return status.NoData("unknown trace mode %q", v.Str())
		}
		mode = TraceMode(i)
		return nil
	})
	return mode, err
}

// ReadTraceData reads trace values (dBm) into dst. See
// session.Gateway.ReadFloatArray for the truncation contract.
func ReadTraceData(s *session.Session, win, trace int, dst []float64) (written, available int, err error) {
	if _, err := selector.ValidateRange(win, MinWindow, MaxWindow, 2, "Window"); err != nil {
		return 0, 0, err
	}
	if _, err := selector.ValidateRange(trace, MinTrace, MaxTrace, 3, "Trace"); err != nil {
		return 0, 0, err
	}

	err = s.Do(func(g *session.Gateway) error {
		var err error
		written, available, err = g.ReadFloatArray(fmt.Sprintf("TRAC%d:DATA? TRACE%d", win, trace), dst)
		return err
	})
	return written, available, err
}

// ConfigureMarker enables a marker, attaches it to a trace and places it
func ConfigureMarker(s *session.Session, win, marker int, enabled bool, trace int, position float64) error {
	w, err := window(win, 2)
	if err != nil {
		return err
	}
	m, err := selector.IndexIn("M", marker, MinMarker, MaxMarker, 3, "Marker")
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRange(trace, MinTrace, MaxTrace, 5, "Trace"); err != nil {
		return err
	}
	if _, err := selector.ValidateRangeFloat(position, MinFrequency, MaxFrequency, 6, "Position"); err != nil {
		return err
	}

	sel := selector.New(w, m)
	return s.Do(func(g *session.Gateway) error {
		if err := g.SetAttribute(sel, attribute.MarkerEnabled, attribute.Bool(enabled)); err != nil {
			return err
		}
		if err := g.SetAttribute(sel, attribute.MarkerTrace, attribute.Int(int64(trace))); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.MarkerPosition, attribute.Real(position))
	})
}

// QueryMarker reads marker position and amplitude. If the amplitude query
// fails the position already read is still returned.
func QueryMarker(s *session.Session, win, marker int) (x, y float64, err error) {
	w, err := window(win, 2)
	if err != nil {
		return 0, 0, err
	}
	m, err := selector.IndexIn("M", marker, MinMarker, MaxMarker, 3, "Marker")
	if err != nil {
		return 0, 0, err
	}

	sel := selector.New(w, m)
	err = s.Do(func(g *session.Gateway) error {
		v, err := g.GetAttribute(sel, attribute.MarkerPosition)
		if err != nil {
			return err
		}
		x = v.Real()

		v, err = g.GetAttribute(sel, attribute.MarkerAmplitude)
		if err != nil {
			return err
		}
		y = v.Real()
		return nil
	})
	return x, y, err
}

// InitiateAndWait starts a single sweep and waits for completion. The OPC
// timeout is raised to timeout for this call and restored afterwards.
func InitiateAndWait(s *session.Session, timeout time.Duration) error {
	if timeout <= 0 {
		return status.Range(2, "Timeout", "timeout must be positive, got %v", timeout)
	}

	return s.Do(func(g *session.Gateway) error {
		saved := g.OPCTimeout()
		if err := g.SetOPCTimeout(timeout); err != nil {
			return err
		}
		defer g.SetOPCTimeout(saved)

		if err := g.WriteRaw("INIT:CONT OFF"); err != nil {
			return err
		}
		return g.WriteWithOPC("INIT:IMM")
	})
}
