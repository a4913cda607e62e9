// Package analysis turns one audio analysis frame into the scalar metrics the
// onset detector works on: loudness (RMS), the dominant frequency and the
// share of spectral energy that falls into a high and a mid band.
//
// [Analyze] is a pure function. It is called once per analysis tick by the
// session loop and never retains its input.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/drumcoach/pkg/audio"
)

// Band is a half-open frequency range [Min, Max) in Hz.
type Band struct {
	Min float64 `yaml:"min_hz" json:"min_hz"`
	Max float64 `yaml:"max_hz" json:"max_hz"`
}

// Contains reports whether hz lies in [b.Min, b.Max).
func (b Band) Contains(hz float64) bool {
	return hz >= b.Min && hz < b.Max
}

// Validate checks that the band is finite, non-negative and non-empty.
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsInf(b.Min, 0) || math.IsNaN(b.Max) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("band [%g, %g) must be finite", b.Min, b.Max)
	}
	if b.Min < 0 {
		return fmt.Errorf("band minimum %g must not be negative", b.Min)
	}
	if b.Max <= b.Min {
		return fmt.Errorf("band maximum %g must be greater than minimum %g", b.Max, b.Min)
	}
	return nil
}

// Bands selects the frequency ranges used for the spectral ratios.
type Bands struct {
	// High is the hi-hat band. Default: 4000-15000 Hz.
	High Band `yaml:"high" json:"high"`

	// Mid is the mid band. Default: 1000-4000 Hz.
	Mid Band `yaml:"mid" json:"mid"`
}

// DefaultBands returns the default high and mid bands.
func DefaultBands() Bands {
	return Bands{
		High: Band{Min: 4000, Max: 15000},
		Mid:  Band{Min: 1000, Max: 4000},
	}
}

// Validate checks both bands and returns all problems joined.
func (b Bands) Validate() error {
	var errs []error
	if err := b.High.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: high %w", err))
	}
	if err := b.Mid.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: mid %w", err))
	}
	return errors.Join(errs...)
}

// Metrics is the per-frame summary produced by [Analyze].
type Metrics struct {
	// RMS is the root-mean-square of the time-domain samples. Always >= 0.
	RMS float64

	// DominantFrequencyHz is the centre frequency of the loudest bin.
	DominantFrequencyHz float64

	// HighFreqRatio is the high-band share of the total magnitude, in [0, 1].
	HighFreqRatio float64

	// MidFreqRatio is the mid-band share of the total magnitude, in [0, 1].
	MidFreqRatio float64
}

// Analyze computes [Metrics] for frame. Empty or silent frames yield zero
// metrics; the ratios are zero whenever the spectrum carries no energy.
func Analyze(frame audio.AudioFrame, bands Bands) Metrics {
	var m Metrics
	m.RMS = RMS(frame.Samples)

	numBins := frame.NumBins()
	if numBins == 0 {
		return m
	}
	binHz := float64(frame.SampleRate) / float64(2*numBins)

	peak := 0
	var total, high, mid float64
	for i, mag := range frame.Spectrum {
		// Strictly greater keeps the first maximum.
		if mag > frame.Spectrum[peak] {
			peak = i
		}
		total += mag
		hz := float64(i) * binHz
		if bands.High.Contains(hz) {
			high += mag
		}
		if bands.Mid.Contains(hz) {
			mid += mag
		}
	}
	m.DominantFrequencyHz = float64(peak) * binHz
	if total > 0 {
		m.HighFreqRatio = high / total
		m.MidFreqRatio = mid / total
	}
	return m
}

// RMS returns the root-mean-square of samples, 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
