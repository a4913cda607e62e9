package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Matching selects how a hit finds its note.
type Matching string

const (
	// MatchGlobal scans every pending note and takes the nearest one inside
	// the acceptable window. Suited to long or continuous schedules.
	MatchGlobal Matching = "global"

	// MatchSequential only considers the earliest pending note, the "current
	// expected note". Suited to fixed-length loops.
	MatchSequential Matching = "sequential"
)

// IsValid reports whether m is a recognised matching mode.
func (m Matching) IsValid() bool {
	return m == MatchGlobal || m == MatchSequential
}

// Strictness decides what happens to a hit that matches no note.
type Strictness string

const (
	// StrictnessLenient drops the hit without touching notes or stats.
	StrictnessLenient Strictness = "lenient-discard"

	// StrictnessCountAsMiss records the hit as a miss and breaks the streak.
	StrictnessCountAsMiss Strictness = "count-as-miss"
)

// IsValid reports whether s is a recognised strictness.
func (s Strictness) IsValid() bool {
	return s == StrictnessLenient || s == StrictnessCountAsMiss
}

// Config holds the timing windows and matching policy. All durations are in
// seconds.
type Config struct {
	// PerfectWindow is the largest |error| judged perfect.
	PerfectWindow float64 `yaml:"perfect_window"`

	// GoodWindow is the largest |error| judged good.
	GoodWindow float64 `yaml:"good_window"`

	// AcceptableWindow is the largest |error| at which a hit matches a note
	// at all. Matched hits beyond GoodWindow are slightly off.
	AcceptableWindow float64 `yaml:"acceptable_window"`

	// GraceWindow is how long after its time a pending note waits before the
	// sweep declares it missed.
	GraceWindow float64 `yaml:"grace_window"`

	// LatencyOffset is subtracted from every hit time to compensate for input
	// latency. May be negative.
	LatencyOffset float64 `yaml:"latency_offset"`

	Matching   Matching   `yaml:"matching"`
	Strictness Strictness `yaml:"strictness"`
}

// DefaultConfig returns the stock windows: 50 ms perfect, 100 ms good and
// acceptable, 200 ms grace, global matching, lenient strictness.
func DefaultConfig() Config {
	return Config{
		PerfectWindow:    0.05,
		GoodWindow:       0.1,
		AcceptableWindow: 0.1,
		GraceWindow:      0.2,
		Matching:         MatchGlobal,
		Strictness:       StrictnessLenient,
	}
}

// Validate reports every problem with c, joined.
func (c Config) Validate() error {
	var errs []error
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"perfect_window", c.PerfectWindow},
		{"good_window", c.GoodWindow},
		{"acceptable_window", c.AcceptableWindow},
		{"grace_window", c.GraceWindow},
	} {
		if w.v <= 0 || math.IsInf(w.v, 0) || math.IsNaN(w.v) {
			errs = append(errs, fmt.Errorf("scoring: %s must be positive and finite, got %g", w.name, w.v))
		}
	}
	if math.IsInf(c.LatencyOffset, 0) || math.IsNaN(c.LatencyOffset) {
		errs = append(errs, fmt.Errorf("scoring: latency_offset must be finite, got %g", c.LatencyOffset))
	}
	if len(errs) == 0 {
		if c.PerfectWindow >= c.GoodWindow {
			errs = append(errs, fmt.Errorf("scoring: perfect_window %g must be below good_window %g", c.PerfectWindow, c.GoodWindow))
		}
		if c.GoodWindow > c.AcceptableWindow {
			errs = append(errs, fmt.Errorf("scoring: good_window %g must not exceed acceptable_window %g", c.GoodWindow, c.AcceptableWindow))
		}
		if c.AcceptableWindow > c.GraceWindow {
			errs = append(errs, fmt.Errorf("scoring: acceptable_window %g must not exceed grace_window %g", c.AcceptableWindow, c.GraceWindow))
		}
	}
	if !c.Matching.IsValid() {
		errs = append(errs, fmt.Errorf("scoring: matching %q must be %q or %q", c.Matching, MatchGlobal, MatchSequential))
	}
	if !c.Strictness.IsValid() {
		errs = append(errs, fmt.Errorf("scoring: strictness %q must be %q or %q", c.Strictness, StrictnessLenient, StrictnessCountAsMiss))
	}
	return errors.Join(errs...)
}
