package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/drumcoach/internal/analysis"
	"github.com/MrWong99/drumcoach/internal/onset"
	"github.com/MrWong99/drumcoach/internal/scoring"
)

// DefaultSweepInterval is the default period of the missed-note sweep.
const DefaultSweepInterval = 25 * time.Millisecond

// Config bundles the tuning of every stage of a session.
type Config struct {
	Bands    analysis.Bands
	Detector onset.Config
	Scoring  scoring.Config

	// SweepInterval is how often pending notes are checked against their
	// grace window. Defaults to 25ms if zero.
	SweepInterval time.Duration

	// Duration ends the session once this much session time has passed.
	// Zero means no limit.
	Duration time.Duration

	// NoteLimit ends the session once this many notes have been evaluated.
	// Later overdue notes stay pending. Zero means no limit.
	NoteLimit int
}

// DefaultConfig returns the stock tuning with no end condition besides the
// schedule running out.
func DefaultConfig() Config {
	return Config{
		Bands:         analysis.DefaultBands(),
		Detector:      onset.DefaultConfig(),
		Scoring:       scoring.DefaultConfig(),
		SweepInterval: DefaultSweepInterval,
	}
}

// Validate checks every stage and the end conditions.
func (c Config) Validate() error {
	var errs []error
	if err := c.Bands.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Detector.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("session: sweep interval %v must not be negative", c.SweepInterval))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("session: duration %v must not be negative", c.Duration))
	}
	if c.NoteLimit < 0 {
		errs = append(errs, fmt.Errorf("session: note limit %d must not be negative", c.NoteLimit))
	}
	return errors.Join(errs...)
}
