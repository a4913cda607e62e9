package scoring_test

import (
	"testing"

	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/pkg/types"
)

func TestVerdict_Outcome(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v       scoring.Verdict
		name    string
		outcome types.Outcome
	}{
		{scoring.VerdictPerfect, "perfect", types.OutcomePerfect},
		{scoring.VerdictGood, "good", types.OutcomeGood},
		{scoring.VerdictSlightlyOff, "slightly_off", types.OutcomeGood},
		{scoring.VerdictWrongInstrument, "wrong_instrument", types.OutcomeMissed},
		{scoring.VerdictMissed, "missed", types.OutcomeMissed},
		{scoring.VerdictStray, "stray", types.OutcomeMissed},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.v.Outcome(); got != tt.outcome {
			t.Errorf("%s.Outcome() = %v, want %v", tt.name, got, tt.outcome)
		}
		var back scoring.Verdict
		if err := back.UnmarshalText([]byte(tt.name)); err != nil || back != tt.v {
			t.Errorf("UnmarshalText(%q) = %v, %v", tt.name, back, err)
		}
	}

	var v scoring.Verdict
	if err := v.UnmarshalText([]byte("close_enough")); err == nil {
		t.Error("unknown verdict decoded without error")
	}
}
