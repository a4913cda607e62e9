// Package schedule builds and holds the list of expected notes a session is
// judged against.
//
// Notes come from a step [Pattern] on a sixteenth-note grid ([Generate]) or
// from an explicit list of times ([FromList]). Either way the result is sorted
// ascending by time, with simultaneous notes kept in instrument enumeration
// order. Matching relies on that order.
package schedule

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/drumcoach/pkg/types"
)

// MaxBPM bounds the tempo accepted by [Generate].
const MaxBPM = 400

// StepsPerBeat is the grid resolution: sixteenth notes.
const StepsPerBeat = 4

// Note is one expected hit. Time, Instrument, Index and Step identify the note
// and never change; the remaining fields record the verdict and are written
// once by the scorer.
type Note struct {
	Time       float64          `json:"time"`
	Instrument types.Instrument `json:"instrument"`
	Index      int              `json:"index"`

	// Step is the grid step the note was generated from, -1 for notes built
	// from an explicit list.
	Step int `json:"step"`

	Hit             bool `json:"hit"`
	Correct         bool `json:"correct"`
	WrongInstrument bool `json:"wrong_instrument"`
	SlightlyOff     bool `json:"slightly_off"`
}

// Pending reports whether the note has not been evaluated yet.
func (n Note) Pending() bool { return !n.Hit }

// Identity is the immutable part of a note.
type Identity struct {
	Time       float64          `json:"time"`
	Instrument types.Instrument `json:"instrument"`
	Index      int              `json:"index"`
}

// Identity returns the immutable part of n.
func (n Note) Identity() Identity {
	return Identity{Time: n.Time, Instrument: n.Instrument, Index: n.Index}
}

// reset clears the verdict fields.
func (n *Note) reset() {
	n.Hit, n.Correct, n.WrongInstrument, n.SlightlyOff = false, false, false, false
}

// Pattern maps each instrument to its ordered step sequence; true marks an
// active step.
type Pattern map[types.Instrument][]bool

// Len returns the length of the longest track.
func (p Pattern) Len() int {
	n := 0
	for _, steps := range p {
		n = max(n, len(steps))
	}
	return n
}

// Active returns the active step indices of every instrument that has any.
func (p Pattern) Active() map[types.Instrument][]int {
	out := make(map[types.Instrument][]int)
	for inst, steps := range p {
		for i, on := range steps {
			if on {
				out[inst] = append(out[inst], i)
			}
		}
	}
	return out
}

// Validate rejects unschedulable instruments and patterns without an active
// step.
func (p Pattern) Validate() error {
	var errs []error
	for inst := range p {
		if !inst.IsValid() {
			errs = append(errs, fmt.Errorf("schedule: instrument %v cannot be scheduled", inst))
		}
	}
	if len(p.Active()) == 0 {
		errs = append(errs, errors.New("schedule: pattern has no active steps"))
	}
	return errors.Join(errs...)
}

// StepDuration returns the length of one sixteenth-note step in seconds.
func StepDuration(bpm int) float64 {
	return 60 / float64(bpm) / StepsPerBeat
}

func validateBPM(bpm int) error {
	if bpm <= 0 || bpm > MaxBPM {
		return fmt.Errorf("schedule: bpm %d must be in (0, %d]", bpm, MaxBPM)
	}
	return nil
}

// Generate emits one note per active step of p at bpm.
func Generate(p Pattern, bpm int) ([]Note, error) {
	return GenerateLoops(p, bpm, 1)
}

// GenerateLoops repeats p loops times back to back. Steps keep counting
// across loops, so the second loop of a 16-step pattern starts at step 16.
func GenerateLoops(p Pattern, bpm, loops int) ([]Note, error) {
	if err := validateBPM(bpm); err != nil {
		return nil, err
	}
	if loops <= 0 {
		return nil, fmt.Errorf("schedule: loops %d must be positive", loops)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	step := StepDuration(bpm)
	length := p.Len()
	var notes []Note
	for loop := range loops {
		for _, inst := range types.Instruments {
			for i, on := range p[inst] {
				if !on {
					continue
				}
				s := loop*length + i
				notes = append(notes, Note{
					Time:       float64(s) * step,
					Instrument: inst,
					Step:       s,
				})
			}
		}
	}
	return finish(notes), nil
}

// Entry is one element of an explicit schedule.
type Entry struct {
	Time       float64          `yaml:"time" json:"time"`
	Instrument types.Instrument `yaml:"instrument" json:"instrument"`
}

// FromList builds notes from explicit entries.
func FromList(entries []Entry) ([]Note, error) {
	if len(entries) == 0 {
		return nil, errors.New("schedule: empty note list")
	}
	var errs []error
	notes := make([]Note, 0, len(entries))
	for i, e := range entries {
		if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) || e.Time < 0 {
			errs = append(errs, fmt.Errorf("schedule: entry %d: time %g must be finite and non-negative", i, e.Time))
		}
		if !e.Instrument.IsValid() {
			errs = append(errs, fmt.Errorf("schedule: entry %d: instrument %v cannot be scheduled", i, e.Instrument))
		}
		notes = append(notes, Note{Time: e.Time, Instrument: e.Instrument, Step: -1})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return finish(notes), nil
}

// finish sorts by time, keeping insertion order for ties, and assigns indices.
func finish(notes []Note) []Note {
	slices.SortStableFunc(notes, func(a, b Note) int {
		return cmp.Compare(a.Time, b.Time)
	})
	for i := range notes {
		notes[i].Index = i
	}
	return notes
}

// Recover rebuilds the pattern notes were generated from. Notes without a
// grid step are placed on the nearest step at bpm. Every track is as long as
// the longest one.
func Recover(notes []Note, bpm int) Pattern {
	if len(notes) == 0 || bpm <= 0 {
		return Pattern{}
	}
	step := StepDuration(bpm)
	steps := make([]int, len(notes))
	length := 0
	for i, n := range notes {
		s := n.Step
		if s < 0 {
			s = int(math.Round(n.Time / step))
		}
		steps[i] = s
		length = max(length, s+1)
	}
	p := make(Pattern)
	for i, n := range notes {
		track, ok := p[n.Instrument]
		if !ok {
			track = make([]bool, length)
			p[n.Instrument] = track
		}
		track[steps[i]] = true
	}
	return p
}

// Schedule holds the notes of one run. It is not safe for concurrent use; the
// scorer serialises access.
type Schedule struct {
	notes []Note
}

// New returns a Schedule over a copy of notes with cleared verdicts.
func New(notes []Note) *Schedule {
	s := &Schedule{notes: slices.Clone(notes)}
	s.Reset()
	return s
}

// Len returns the number of notes.
func (s *Schedule) Len() int { return len(s.notes) }

// At returns a pointer to the i-th note for in-place evaluation.
func (s *Schedule) At(i int) *Note { return &s.notes[i] }

// End returns the time of the last note, 0 for an empty schedule.
func (s *Schedule) End() float64 {
	if len(s.notes) == 0 {
		return 0
	}
	return s.notes[len(s.notes)-1].Time
}

// Reset clears every verdict.
func (s *Schedule) Reset() {
	for i := range s.notes {
		s.notes[i].reset()
	}
}

// Snapshot returns a copy of the notes.
func (s *Schedule) Snapshot() []Note {
	return slices.Clone(s.notes)
}
