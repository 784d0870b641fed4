package measure

import (
	"fmt"
	"time"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/reply"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
)

// Spectrogram bounds
const (
	MinFrameCount = 1
	MaxFrameCount = 20001
)

// timestampShape is one CALC:SGR:TST:DATA? record: seconds and
// nanoseconds since the epoch, then two reserved fields
var timestampShape = reply.NewShape(
	reply.Field{Name: "Seconds", Kind: reply.FieldInt},
	reply.Field{Name: "Nanoseconds", Kind: reply.FieldInt},
	reply.Field{Name: "Reserved1", Kind: reply.FieldInt},
	reply.Field{Name: "Reserved2", Kind: reply.FieldInt},
)

// ConfigureSpectrogram switches the spectrogram of a window and sets the
// number of frames per sweep
func ConfigureSpectrogram(s *session.Session, win int, enabled bool, frames int) error {
	sel, err := windowSelector(win, 2)
	if err != nil {
		return err
	}
	if _, err := selector.ValidateRange(frames, MinFrameCount, MaxFrameCount, 4, "Frame Count"); err != nil {
		return err
	}

	return s.Do(func(g *session.Gateway) error {
		if err := g.SetAttribute(sel, attribute.SpectrogramEnabled, attribute.Bool(enabled)); err != nil {
			return err
		}
		return g.SetAttribute(sel, attribute.SpectrogramFrameCount, attribute.Int(int64(frames)))
	})
}

// ReadSpectrogramTimestamps reads the capture time of every frame in the
// history buffer, most recent first
func ReadSpectrogramTimestamps(s *session.Session, win int) ([]time.Time, error) {
	if _, err := selector.ValidateRange(win, MinWindow, MaxWindow, 2, "Window"); err != nil {
		return nil, err
	}

	var stamps []time.Time
	err := s.Do(func(g *session.Gateway) error {
		records, err := g.ReadRecords(fmt.Sprintf("CALC%d:SGR:TST:DATA? ALL", win), timestampShape)
		if err != nil {
			return err
		}
		stamps = make([]time.Time, len(records))
		for i, rec := range records {
			stamps[i] = time.Unix(rec.Int("Seconds"), rec.Int("Nanoseconds")).UTC()
		}
		return nil
	})
	return stamps, err
}

// ClearSpectrogram empties the history buffer of a window
func ClearSpectrogram(s *session.Session, win int) error {
	if _, err := selector.ValidateRange(win, MinWindow, MaxWindow, 2, "Window"); err != nil {
		return err
	}
	return s.Do(func(g *session.Gateway) error {
		return g.WriteRaw(fmt.Sprintf("CALC%d:SGR:CLE", win))
	})
}
