package onset

import (
	"errors"
	"fmt"

	"github.com/MrWong99/drumcoach/pkg/types"
)

// InstrumentBands are the thresholds of the banded instrument classifier.
type InstrumentBands struct {
	// OpenHatMinHz splits hi-hat-like hits: strictly above is an open hat.
	OpenHatMinHz float64 `yaml:"open_hat_min_hz"`

	// KickMaxHz and KickMinAmplitude bound a kick: below the frequency and
	// strictly louder than the amplitude.
	KickMaxHz        float64 `yaml:"kick_max_hz"`
	KickMinAmplitude float64 `yaml:"kick_min_amplitude"`

	// SnareMinHz and SnareMaxHz bound a snare, inclusive.
	SnareMinHz float64 `yaml:"snare_min_hz"`
	SnareMaxHz float64 `yaml:"snare_max_hz"`
}

// DefaultInstrumentBands returns the stock bands.
func DefaultInstrumentBands() InstrumentBands {
	return InstrumentBands{
		OpenHatMinHz:     8000,
		KickMaxHz:        100,
		KickMinAmplitude: 0.5,
		SnareMinHz:       100,
		SnareMaxHz:       1000,
	}
}

// Validate checks the bands for positive finite values and a non-empty snare
// range.
func (b InstrumentBands) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open_hat_min_hz", b.OpenHatMinHz},
		{"kick_max_hz", b.KickMaxHz},
		{"kick_min_amplitude", b.KickMinAmplitude},
		{"snare_min_hz", b.SnareMinHz},
		{"snare_max_hz", b.SnareMaxHz},
	} {
		if !positiveFinite(f.v) {
			errs = append(errs, fmt.Errorf("onset: instruments.%s must be positive and finite, got %g", f.name, f.v))
		}
	}
	if b.SnareMaxHz < b.SnareMinHz {
		errs = append(errs, fmt.Errorf("onset: instruments.snare_max_hz %g is below snare_min_hz %g", b.SnareMaxHz, b.SnareMinHz))
	}
	return errors.Join(errs...)
}

// Infer maps a detected hit to an instrument. Hi-hat-like hits become
// [types.OpenHat] above OpenHatMinHz and [types.HiHat] otherwise. Loud low
// hits are kicks, mid-low hits are snares, and anything else is
// [types.Unknown].
func (b InstrumentBands) Infer(hit types.DetectedHit) types.Instrument {
	switch {
	case hit.IsHiHat:
		if hit.Frequency > b.OpenHatMinHz {
			return types.OpenHat
		}
		return types.HiHat
	case hit.Frequency < b.KickMaxHz && hit.Amplitude > b.KickMinAmplitude:
		return types.Kick
	case hit.Frequency >= b.SnareMinHz && hit.Frequency <= b.SnareMaxHz:
		return types.Snare
	default:
		return types.Unknown
	}
}
