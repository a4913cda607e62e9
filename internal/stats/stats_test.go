package stats_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/drumcoach/internal/stats"
	"github.com/MrWong99/drumcoach/pkg/types"
)

func TestRecord_Streaks(t *testing.T) {
	t.Parallel()

	a := stats.NewAggregator()
	seq := []types.Outcome{
		types.OutcomePerfect,
		types.OutcomeGood,
		types.OutcomePerfect,
		types.OutcomeMissed,
		types.OutcomeGood,
	}
	for _, o := range seq {
		a.Record(o)
		s := a.Snapshot()
		if s.BestStreak < s.CurrentStreak {
			t.Fatalf("after %v: best streak %d < current %d", o, s.BestStreak, s.CurrentStreak)
		}
	}

	want := stats.TimingStats{
		PerfectHits:   2,
		GoodHits:      2,
		MissedHits:    1,
		TotalHits:     5,
		CurrentStreak: 1,
		BestStreak:    3,
	}
	if got := a.Snapshot(); got != want {
		t.Errorf("Snapshot = %+v, want %+v", got, want)
	}
	if got := a.Accuracy(); got != 80 {
		t.Errorf("Accuracy = %d, want 80", got)
	}
}

func TestAccuracy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		s    stats.TimingStats
		want int
	}{
		{"empty", stats.TimingStats{}, 0},
		{"all missed", stats.TimingStats{MissedHits: 4, TotalHits: 4}, 0},
		{"two thirds", stats.TimingStats{PerfectHits: 1, GoodHits: 1, MissedHits: 1, TotalHits: 3}, 67},
		{"one third", stats.TimingStats{PerfectHits: 1, MissedHits: 2, TotalHits: 3}, 33},
		{"half rounds up", stats.TimingStats{GoodHits: 1, MissedHits: 7, TotalHits: 8}, 13},
		{"perfect", stats.TimingStats{PerfectHits: 2, TotalHits: 2}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.s.Accuracy(); got != tt.want {
				t.Errorf("Accuracy = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	a := stats.NewAggregator()
	a.Record(types.OutcomePerfect)
	a.Record(types.OutcomeMissed)
	a.Reset()
	if got := a.Snapshot(); got != (stats.TimingStats{}) {
		t.Errorf("Snapshot after Reset = %+v, want zero", got)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	t.Parallel()
	a := stats.NewAggregator()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 100 {
				a.Record(types.Outcome(i % 3))
			}
		})
	}
	wg.Wait()

	s := a.Snapshot()
	if s.TotalHits != 800 {
		t.Errorf("TotalHits = %d, want 800", s.TotalHits)
	}
	if s.PerfectHits+s.GoodHits+s.MissedHits != s.TotalHits {
		t.Errorf("counters do not add up: %+v", s)
	}
}
