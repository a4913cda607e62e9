// Package onset turns a stream of per-frame [analysis.Metrics] into discrete
// percussive hits.
//
// A [Detector] applies an amplitude threshold and a debounce interval to
// decide when a new onset begins, then tags the hit with a coarse spectral
// classification (hi-hat-like or not). [InstrumentBands.Infer] maps a hit to
// an instrument with simple frequency bands.
//
// Both classifiers are heuristics. They tell a bright cymbal from a low drum
// but they are not timbre recognition and will mislabel real kits regularly;
// tune the thresholds per room and microphone.
package onset

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/drumcoach/internal/analysis"
	"github.com/MrWong99/drumcoach/pkg/types"
)

// Config holds the tunable detector thresholds. Zero values are invalid; start
// from [DefaultConfig].
type Config struct {
	// AmplitudeThreshold is the RMS a frame must exceed to count as an onset.
	AmplitudeThreshold float64 `yaml:"amplitude_threshold"`

	// DebounceSeconds is the minimum spacing between two reported onsets.
	// Frames within this interval of the previous onset are ignored.
	DebounceSeconds float64 `yaml:"debounce_seconds"`

	// HighRatio alone marks a frame as hi-hat-like when exceeded.
	HighRatio float64 `yaml:"high_ratio"`

	// SecondaryHighRatio and MidRatio together mark a frame as hi-hat-like
	// when both are exceeded.
	SecondaryHighRatio float64 `yaml:"secondary_high_ratio"`
	MidRatio           float64 `yaml:"mid_ratio"`

	// Instruments configures [InstrumentBands.Infer].
	Instruments InstrumentBands `yaml:"instruments"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AmplitudeThreshold: 0.01,
		DebounceSeconds:    0.08,
		HighRatio:          0.25,
		SecondaryHighRatio: 0.15,
		MidRatio:           0.3,
		Instruments:        DefaultInstrumentBands(),
	}
}

// Validate reports every invalid field, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if !positiveFinite(v) {
			errs = append(errs, fmt.Errorf("onset: %s must be positive and finite, got %g", name, v))
		}
	}
	check("amplitude_threshold", c.AmplitudeThreshold)
	check("debounce_seconds", c.DebounceSeconds)
	check("high_ratio", c.HighRatio)
	check("secondary_high_ratio", c.SecondaryHighRatio)
	check("mid_ratio", c.MidRatio)
	if err := c.Instruments.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Detector is the onset state machine. It is not safe for concurrent use; the
// session loop owns it.
type Detector struct {
	cfg         Config
	lastHitTime float64
}

// NewDetector returns a Detector with no previous onset.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, lastHitTime: math.Inf(-1)}
}

// Push feeds the metrics of one frame observed at time at (seconds since
// session start). It returns the detected hit and true when the frame starts a
// new onset.
func (d *Detector) Push(m analysis.Metrics, at float64) (types.DetectedHit, bool) {
	if m.RMS <= d.cfg.AmplitudeThreshold {
		return types.DetectedHit{}, false
	}
	if at-d.lastHitTime <= d.cfg.DebounceSeconds {
		return types.DetectedHit{}, false
	}
	d.lastHitTime = at
	return types.DetectedHit{
		Time:      at,
		Frequency: m.DominantFrequencyHz,
		Amplitude: m.RMS,
		IsHiHat:   d.Classify(m),
	}, true
}

// Classify reports whether m looks like a hi-hat: dominated by the high band,
// or moderately high with a strong mid band.
func (d *Detector) Classify(m analysis.Metrics) bool {
	return m.HighFreqRatio > d.cfg.HighRatio ||
		(m.HighFreqRatio > d.cfg.SecondaryHighRatio && m.MidFreqRatio > d.cfg.MidRatio)
}

// Reset forgets the previous onset.
func (d *Detector) Reset() {
	d.lastHitTime = math.Inf(-1)
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
