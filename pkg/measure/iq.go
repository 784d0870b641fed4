package measure

import (
	"fmt"
	"strconv"

	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
)

// I/Q analyzer bounds
const (
	MinIQSampleRate   = 100.0
	MaxIQSampleRate   = 600e6
	MinIQRecordLength = 2
	MaxIQRecordLength = 440000000
)

// ConfigureIQCapture enables the I/Q data recorder with a sample rate (Hz)
// and record length (samples)
func ConfigureIQCapture(s *session.Session, sampleRate float64, recordLength int) error {
	if _, err := selector.ValidateRangeFloat(sampleRate, MinIQSampleRate, MaxIQSampleRate, 2, "Sample Rate"); err != nil {
		return err
	}
	if _, err := selector.ValidateRange(recordLength, MinIQRecordLength, MaxIQRecordLength, 3, "Record Length"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.WriteRaw("TRAC:IQ:STAT ON"); err != nil {
			return err
		}
		if err := g.WriteRaw("TRAC:IQ:SRAT " + strconv.FormatFloat(sampleRate, 'G', -1, 64)); err != nil {
			return err
		}
		if err := g.WriteRaw(fmt.Sprintf("TRAC:IQ:RLEN %d", recordLength)); err != nil {
			return err
		}
		return g.WriteRaw("FORM:IQ IQP")
	})
}

// ReadIQData reads the captured samples as I/Q pairs
func ReadIQData(s *session.Session, re, im []float64) (written, available int, err error) {
	err = s.Do(func(g *session.Gateway) error {
		var err error
		written, available, err = g.ReadIQArray("TRAC:IQ:DATA:MEM?", re, im)
		return err
	})
	return written, available, err
}

// QueryIQSampleRate reads the I/Q sample rate
func QueryIQSampleRate(s *session.Session) (float64, error) {
	var rate float64
	err := s.Do(func(g *session.Gateway) error {
		text, err := g.QueryRaw("TRAC:IQ:SRAT?")
		if err != nil {
			return err
		}
		if rate, err = strconv.ParseFloat(text, 64); err != nil {
			return status.NoData("malformed sample rate %q", text)
		}
		return nil
	})
	return rate, err
}
