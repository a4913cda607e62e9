package scoring

import (
	"fmt"

	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/pkg/types"
)

// Verdict is the per-event classification. Each verdict maps to exactly one
// [types.Outcome].
type Verdict int

const (
	VerdictPerfect Verdict = iota
	VerdictGood
	VerdictSlightlyOff
	VerdictWrongInstrument
	VerdictMissed
	VerdictStray
)

// String returns the wire name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictPerfect:
		return "perfect"
	case VerdictGood:
		return "good"
	case VerdictSlightlyOff:
		return "slightly_off"
	case VerdictWrongInstrument:
		return "wrong_instrument"
	case VerdictMissed:
		return "missed"
	case VerdictStray:
		return "stray"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (v *Verdict) UnmarshalText(b []byte) error {
	for c := VerdictPerfect; c <= VerdictStray; c++ {
		if c.String() == string(b) {
			*v = c
			return nil
		}
	}
	return fmt.Errorf("scoring: unknown verdict %q", b)
}

// Outcome returns the statistics classification of v.
func (v Verdict) Outcome() types.Outcome {
	switch v {
	case VerdictPerfect:
		return types.OutcomePerfect
	case VerdictGood, VerdictSlightlyOff:
		return types.OutcomeGood
	default:
		return types.OutcomeMissed
	}
}

// Event reports one evaluation to consumers.
type Event struct {
	// NoteIndex is the evaluated note, -1 for stray hits.
	NoteIndex int `json:"note_index"`

	// Note identifies the evaluated note. For stray hits under sequential
	// matching it is the note the pointer was waiting for; otherwise it is
	// zero for stray hits.
	Note schedule.Identity `json:"note"`

	Verdict Verdict       `json:"verdict"`
	Outcome types.Outcome `json:"outcome"`

	// SignedErrorMs is hit time minus note time in milliseconds; positive is
	// late. Zero for sweep misses.
	SignedErrorMs float64 `json:"signed_error_ms"`

	// HitTime is the latency-corrected hit time, or the end of the grace
	// window for missed notes.
	HitTime float64 `json:"hit_time"`

	// Detected is the inferred instrument of the hit, Unknown for sweeps.
	Detected types.Instrument `json:"detected"`
}
