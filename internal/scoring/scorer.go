// Package scoring matches detected hits against the expected notes and
// judges their timing.
//
// Every note leaves the pending state exactly once, either through a matching
// hit ([Scorer.OnHit]) or because its grace window ran out ([Scorer.Sweep]).
// A single mutex makes each check-and-set atomic, so hit and sweep paths may
// be driven from different goroutines.
package scoring

import (
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/stats"
	"github.com/MrWong99/drumcoach/pkg/types"
)

// Scorer owns the verdicts of one schedule and reports outcomes to a stats
// aggregator.
type Scorer struct {
	cfg   Config
	stats *stats.Aggregator

	mu        sync.Mutex
	sched     *schedule.Schedule
	next      int // every note before next is evaluated
	evaluated int
}

// New returns a Scorer for sched. The scorer takes ownership of sched; callers
// must read notes through [Scorer.Notes].
func New(cfg Config, sched *schedule.Schedule, agg *stats.Aggregator) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, sched: sched, stats: agg}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config { return s.cfg }

// OnHit judges one detected hit whose instrument was inferred as inferred. It
// returns the resulting event and true, or false when the hit was discarded.
func (s *Scorer) OnHit(hit types.DetectedHit, inferred types.Instrument) (Event, bool) {
	t := hit.Time - s.cfg.LatencyOffset

	s.mu.Lock()
	defer s.mu.Unlock()

	pointer := s.pointer()
	idx := -1
	switch s.cfg.Matching {
	case MatchSequential:
		if pointer >= 0 && math.Abs(t-s.sched.At(pointer).Time) <= s.cfg.AcceptableWindow {
			idx = s.chord(pointer, inferred)
		}
	default:
		idx = s.nearest(t, inferred)
	}

	if idx < 0 {
		if s.cfg.Strictness != StrictnessCountAsMiss {
			return Event{}, false
		}
		ev := Event{
			NoteIndex: -1,
			Verdict:   VerdictStray,
			Outcome:   types.OutcomeMissed,
			HitTime:   t,
			Detected:  inferred,
		}
		if s.cfg.Matching == MatchSequential && pointer >= 0 {
			n := s.sched.At(pointer)
			ev.Note = n.Identity()
			ev.SignedErrorMs = (t - n.Time) * 1000
		}
		s.stats.Record(ev.Outcome)
		return ev, true
	}

	n := s.sched.At(idx)
	d := t - n.Time
	var v Verdict
	s.mark(n)
	switch {
	case inferred != n.Instrument:
		n.WrongInstrument = true
		v = VerdictWrongInstrument
	case math.Abs(d) <= s.cfg.PerfectWindow:
		n.Correct = true
		v = VerdictPerfect
	case math.Abs(d) <= s.cfg.GoodWindow:
		n.SlightlyOff = true
		v = VerdictGood
	default:
		n.SlightlyOff = true
		v = VerdictSlightlyOff
	}

	ev := Event{
		NoteIndex:     idx,
		Note:          n.Identity(),
		Verdict:       v,
		Outcome:       v.Outcome(),
		SignedErrorMs: d * 1000,
		HitTime:       t,
		Detected:      inferred,
	}
	s.stats.Record(ev.Outcome)
	return ev, true
}

// Sweep marks every pending note whose grace window has passed at session
// time now as missed and returns one event per note. Calling it again with the
// same or an earlier time returns nothing.
func (s *Scorer) Sweep(now float64) []Event {
	return s.SweepLimit(now, 0)
}

// SweepLimit is [Scorer.Sweep] marking at most limit notes, earliest first.
// A limit of zero or less means no limit. Notes left over stay pending for
// the next sweep.
func (s *Scorer) SweepLimit(now float64, limit int) []Event {
	t := now - s.cfg.LatencyOffset

	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	for i := s.next; i < s.sched.Len(); i++ {
		n := s.sched.At(i)
		if !(t > n.Time+s.cfg.GraceWindow) {
			// Sorted by time: nothing later can be overdue.
			break
		}
		if !n.Pending() {
			continue
		}
		if limit > 0 && len(events) == limit {
			break
		}
		s.mark(n)
		ev := Event{
			NoteIndex: i,
			Note:      n.Identity(),
			Verdict:   VerdictMissed,
			Outcome:   types.OutcomeMissed,
			HitTime:   n.Time + s.cfg.GraceWindow,
			Detected:  types.Unknown,
		}
		s.stats.Record(ev.Outcome)
		events = append(events, ev)
	}
	s.advance()
	return events
}

// mark moves n out of pending. Evaluating a note twice is a programming
// error.
func (s *Scorer) mark(n *schedule.Note) {
	if n.Hit {
		panic(fmt.Sprintf("scoring: note %d evaluated twice", n.Index))
	}
	n.Hit = true
	s.evaluated++
	s.advance()
}

// advance moves next past evaluated notes.
func (s *Scorer) advance() {
	for s.next < s.sched.Len() && !s.sched.At(s.next).Pending() {
		s.next++
	}
}

// pointer returns the earliest pending note, -1 when none is left.
func (s *Scorer) pointer() int {
	s.advance()
	if s.next >= s.sched.Len() {
		return -1
	}
	return s.next
}

// nearest returns the pending note closest to t within the acceptable
// window, -1 when none qualifies. Among equally close notes one played on
// inst wins, then the earliest.
func (s *Scorer) nearest(t float64, inst types.Instrument) int {
	best, bestD := -1, math.Inf(1)
	for i := s.next; i < s.sched.Len(); i++ {
		n := s.sched.At(i)
		if n.Time-t > s.cfg.AcceptableWindow {
			break
		}
		if !n.Pending() {
			continue
		}
		d := math.Abs(t - n.Time)
		if d > s.cfg.AcceptableWindow {
			continue
		}
		if d < bestD || (d == bestD && n.Instrument == inst && s.sched.At(best).Instrument != inst) {
			best, bestD = i, d
		}
	}
	return best
}

// chord returns the pending note on inst scheduled at the same time as the
// pointer note, or the pointer itself when there is none.
func (s *Scorer) chord(pointer int, inst types.Instrument) int {
	at := s.sched.At(pointer).Time
	for i := pointer; i < s.sched.Len(); i++ {
		n := s.sched.At(i)
		if n.Time != at {
			break
		}
		if n.Pending() && n.Instrument == inst {
			return i
		}
	}
	return pointer
}

// Pending returns the number of notes not yet evaluated.
func (s *Scorer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Len() - s.evaluated
}

// Evaluated returns the number of evaluated notes.
func (s *Scorer) Evaluated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluated
}

// Done reports whether every note has been evaluated.
func (s *Scorer) Done() bool {
	return s.Pending() == 0
}

// Notes returns a snapshot of the schedule including verdicts.
func (s *Scorer) Notes() []schedule.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Snapshot()
}

// End returns the time of the last note.
func (s *Scorer) End() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.End()
}

// Reset clears every verdict and the stats so the schedule can be replayed.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.Reset()
	s.next = 0
	s.evaluated = 0
	s.stats.Reset()
}
