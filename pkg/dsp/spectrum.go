// Package dsp turns captured I/Q records into power spectra on the host
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// ReferenceImpedance is the load the I/Q voltages are referenced to (ohms)
const ReferenceImpedance = 50.0

// DefaultFFTSize is used when no size is requested
const DefaultFFTSize = 1024

// MinFFTSize and MaxFFTSize bound the accepted transform size
const (
	MinFFTSize = 8
	MaxFFTSize = 1 << 20
)

// FloorDBm is reported for bins without power so spectra stay JSON-safe
const FloorDBm = -300.0

// windows maps names to go-dsp window generators
var windows = map[string]func(int) []float64{
	"hann":        window.Hann,
	"hamming":     window.Hamming,
	"blackman":    window.Blackman,
	"flattop":     window.FlatTop,
	"rectangular": window.Rectangular,
}

// Spectrum is an averaged power spectrum, ordered by frequency
type Spectrum struct {
	Frequencies []float64 `json:"frequencies"` // Hz, absolute when a center was given
	Levels      []float64 `json:"levels"`      // dBm
	Segments    int       `json:"segments"`
	Resolution  float64   `json:"resolution"` // Hz per bin
}

// Analyzer computes Welch-averaged spectra with 50% segment overlap
type Analyzer struct {
	sampleRate float64
	size       int
	coeffs     []float64
	coherent   float64 // squared coherent gain of the window, sum(w)^2
}

// NewAnalyzer creates an analyzer for sampleRate (Hz), fft size and window
// name. An empty window name selects Hann.
func NewAnalyzer(sampleRate float64, size int, windowName string) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if size == 0 {
		size = DefaultFFTSize
	}
	if size < MinFFTSize || size > MaxFFTSize {
		return nil, fmt.Errorf("fft size %d not in [%d, %d]", size, MinFFTSize, MaxFFTSize)
	}
	if windowName == "" {
		windowName = "hann"
	}
	gen, ok := windows[strings.ToLower(windowName)]
	if !ok {
		return nil, fmt.Errorf("unknown window %q", windowName)
	}

	coeffs := gen(size)
	var sum float64
	for _, w := range coeffs {
		sum += w
	}
	return &Analyzer{sampleRate: sampleRate, size: size, coeffs: coeffs, coherent: sum * sum}, nil
}

// Size returns the FFT size
func (a *Analyzer) Size() int {
	return a.size
}

// Spectrum averages the power of every full segment of the record and
// centers the result on center (Hz). re and im must be the same length
// and hold at least one segment.
func (a *Analyzer) Spectrum(re, im []float64, center float64) (*Spectrum, error) {
	if len(re) != len(im) {
		return nil, fmt.Errorf("I and Q lengths differ: %d != %d", len(re), len(im))
	}
	if len(re) < a.size {
		return nil, fmt.Errorf("record of %d samples is shorter than fft size %d", len(re), a.size)
	}

	step := a.size / 2
	power := make([]float64, a.size)
	segment := make([]complex128, a.size)
	segments := 0
	for start := 0; start+a.size <= len(re); start += step {
		for i := range segment {
			w := a.coeffs[i]
			segment[i] = complex(re[start+i]*w, im[start+i]*w)
		}
		for i, x := range fft.FFT(segment) {
			m := cmplx.Abs(x)
			power[i] += m * m
		}
		segments++
	}

	resolution := a.sampleRate / float64(a.size)
	spec := &Spectrum{
		Frequencies: make([]float64, a.size),
		Levels:      make([]float64, a.size),
		Segments:    segments,
		Resolution:  resolution,
	}

	// shift so negative frequencies come first
	half := a.size / 2
	for out := 0; out < a.size; out++ {
		bin := (out + a.size - half) % a.size
		offset := bin
		if bin >= a.size-half {
			offset = bin - a.size
		}
		watts := power[bin] / float64(segments) / a.coherent / ReferenceImpedance
		spec.Frequencies[out] = center + float64(offset)*resolution
		spec.Levels[out] = WattsToDBm(watts)
	}
	return spec, nil
}

// Peak returns the frequency and level of the strongest bin
func (s *Spectrum) Peak() (frequency, level float64) {
	if len(s.Levels) == 0 {
		return 0, FloorDBm
	}
	best := 0
	for i, l := range s.Levels {
		if l > s.Levels[best] {
			best = i
		}
	}
	return s.Frequencies[best], s.Levels[best]
}

// WattsToDBm converts power to dBm, clamped at FloorDBm
func WattsToDBm(w float64) float64 {
	if w <= 0 {
		return FloorDBm
	}
	return math.Max(10*math.Log10(w)+30, FloorDBm)
}
