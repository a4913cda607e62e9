// Package types defines the shared types used across all drumcoach packages.
//
// These types form the lingua franca between the onset detector, the schedule,
// the scorer and the statistics layer. Each package defines its own domain
// types; only cross-cutting data structures live here to avoid circular
// imports.
package types

import (
	"fmt"
	"strings"
)

// Instrument identifies a percussion voice. The declaration order is the
// enumeration order used to break ties between simultaneous scheduled notes.
type Instrument int

const (
	// Kick is the bass drum.
	Kick Instrument = iota

	// Snare is the snare drum.
	Snare

	// HiHat is the closed hi-hat.
	HiHat

	// OpenHat is the open hi-hat.
	OpenHat

	// Unknown is produced by instrument inference when a hit matches no band.
	// It is never scheduled.
	Unknown
)

// Instruments lists every schedulable instrument in enumeration order.
var Instruments = []Instrument{Kick, Snare, HiHat, OpenHat}

// String returns the canonical lower-case name of the instrument.
func (i Instrument) String() string {
	switch i {
	case Kick:
		return "kick"
	case Snare:
		return "snare"
	case HiHat:
		return "hihat"
	case OpenHat:
		return "openhat"
	default:
		return "unknown"
	}
}

// IsValid reports whether i is a schedulable instrument.
func (i Instrument) IsValid() bool {
	return i >= Kick && i <= OpenHat
}

// MarshalText implements [encoding.TextMarshaler].
func (i Instrument) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. Only canonical names are
// accepted; alias resolution lives in the schedule package.
func (i *Instrument) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for _, inst := range Instruments {
		if inst.String() == name {
			*i = inst
			return nil
		}
	}
	if name == "unknown" {
		*i = Unknown
		return nil
	}
	return fmt.Errorf("types: unknown instrument %q", name)
}

// DetectedHit is a discrete percussive onset produced by the onset detector.
// It is immutable once created and consumed by the scorer.
type DetectedHit struct {
	// Time is the onset timestamp in seconds since session start.
	Time float64 `json:"time"`

	// Frequency is the estimated dominant frequency in Hz.
	Frequency float64 `json:"frequency"`

	// Amplitude is the RMS amplitude of the triggering frame, in [0, 1] for
	// normalised input.
	Amplitude float64 `json:"amplitude"`

	// IsHiHat is the coarse spectral-ratio classification of the frame.
	IsHiHat bool `json:"is_hihat"`
}

// Outcome is the statistics-level classification of one evaluation.
type Outcome int

const (
	// OutcomePerfect is a correctly voiced hit inside the perfect window.
	OutcomePerfect Outcome = iota

	// OutcomeGood is a correctly voiced hit outside the perfect window but
	// still accepted.
	OutcomeGood

	// OutcomeMissed covers missed notes, wrong instruments and, in strict
	// mode, stray hits.
	OutcomeMissed
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePerfect:
		return "perfect"
	case OutcomeGood:
		return "good"
	case OutcomeMissed:
		return "missed"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (o *Outcome) UnmarshalText(b []byte) error {
	for c := OutcomePerfect; c <= OutcomeMissed; c++ {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("types: unknown outcome %q", b)
}
