// Package stats accumulates per-session timing statistics from the stream of
// scoring outcomes.
package stats

import (
	"math"
	"sync"

	"github.com/MrWong99/drumcoach/pkg/types"
)

// TimingStats is a point-in-time view of the counters. All fields except
// CurrentStreak only ever grow during a session.
type TimingStats struct {
	PerfectHits   int `json:"perfect_hits"`
	GoodHits      int `json:"good_hits"`
	MissedHits    int `json:"missed_hits"`
	TotalHits     int `json:"total_hits"`
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
}

// Accuracy returns round(100 * (perfect + good) / total), or 0 before the
// first outcome.
func (s TimingStats) Accuracy() int {
	if s.TotalHits == 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.PerfectHits+s.GoodHits) / float64(s.TotalHits)))
}

// Aggregator owns a [TimingStats] and is the only way to change it. It is safe
// for concurrent use.
type Aggregator struct {
	mu sync.Mutex
	s  TimingStats
}

// NewAggregator returns an Aggregator with all counters at zero.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record counts one outcome. Perfect and good extend the streak; missed resets
// it.
func (a *Aggregator) Record(o types.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.s.TotalHits++
	switch o {
	case types.OutcomePerfect:
		a.s.PerfectHits++
		a.extendStreak()
	case types.OutcomeGood:
		a.s.GoodHits++
		a.extendStreak()
	default:
		a.s.MissedHits++
		a.s.CurrentStreak = 0
	}
}

func (a *Aggregator) extendStreak() {
	a.s.CurrentStreak++
	a.s.BestStreak = max(a.s.BestStreak, a.s.CurrentStreak)
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() TimingStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.s
}

// Accuracy is shorthand for Snapshot().Accuracy().
func (a *Aggregator) Accuracy() int {
	return a.Snapshot().Accuracy()
}

// Reset zeroes every counter.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = TimingStats{}
}
