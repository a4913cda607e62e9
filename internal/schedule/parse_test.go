package schedule_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/pkg/types"
)

func TestParseInstrument(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want types.Instrument
	}{
		{"kick", types.Kick},
		{"  Kick ", types.Kick},
		{"BD", types.Kick},
		{"bass drum", types.Kick},
		{"snare", types.Snare},
		{"hi-hat", types.HiHat},
		{"HH", types.HiHat},
		{"openhat", types.OpenHat},
		{"open hat", types.OpenHat},
		{"hihta", types.HiHat},
		{"snaer", types.Snare},
		{"openaht", types.OpenHat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := schedule.ParseInstrument(tt.in)
			if err != nil {
				t.Fatalf("ParseInstrument(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseInstrument(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInstrument_Unknown(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "cowbell", "tom", "unknown"} {
		if _, err := schedule.ParseInstrument(in); !errors.Is(err, schedule.ErrUnknownInstrument) {
			t.Errorf("ParseInstrument(%q) error = %v, want ErrUnknownInstrument", in, err)
		}
	}
}

func TestParsePattern(t *testing.T) {
	t.Parallel()
	p, err := schedule.ParsePattern(map[string]string{
		"hihat": "x.x. x.x.",
		"snare": "--X- |--X-",
		"kick":  "x... ....",
	})
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}
	want := map[types.Instrument][]int{
		types.HiHat: {0, 2, 4, 6},
		types.Snare: {2, 6},
		types.Kick:  {0},
	}
	if got := p.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Active = %v, want %v", got, want)
	}
	if p.Len() != 8 {
		t.Errorf("Len = %d, want 8", p.Len())
	}
}

func TestParsePattern_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rows map[string]string
	}{
		{"bad step", map[string]string{"kick": "x.o."}},
		{"unknown instrument", map[string]string{"cowbell": "x..."}},
		{"duplicate via alias", map[string]string{"kick": "x...", "bd": "..x."}},
		{"all rests", map[string]string{"kick": "...."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := schedule.ParsePattern(tt.rows); err == nil {
				t.Error("ParsePattern() = nil error, want error")
			}
		})
	}
}

func TestFormatPattern_RoundTrip(t *testing.T) {
	t.Parallel()
	rock, _ := schedule.LookupPreset("rock")
	rows := schedule.FormatPattern(rock.Pattern)
	if rows["kick"] != "x.......x......." {
		t.Errorf("kick row = %q", rows["kick"])
	}
	back, err := schedule.ParsePattern(rows)
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}
	if !reflect.DeepEqual(back.Active(), rock.Pattern.Active()) {
		t.Errorf("round trip = %v, want %v", back.Active(), rock.Pattern.Active())
	}
}
