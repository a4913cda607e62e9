package schedule

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/MrWong99/drumcoach/pkg/types"
)

// Preset is a named built-in exercise. Grid presets carry a Pattern and a
// BPM; curated presets carry explicit Entries.
type Preset struct {
	Name        string
	Description string
	BPM         int
	Pattern     Pattern
	Entries     []Entry
}

// Notes builds the preset's notes. loops applies to grid presets only.
func (p Preset) Notes(loops int) ([]Note, error) {
	if len(p.Entries) > 0 {
		return FromList(p.Entries)
	}
	notes, err := GenerateLoops(p.Pattern, p.BPM, loops)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", p.Name, err)
	}
	return notes, nil
}

func steps(n int, active ...int) []bool {
	out := make([]bool, n)
	for _, i := range active {
		out[i] = true
	}
	return out
}

// Presets returns the built-in exercises sorted by name.
func Presets() []Preset {
	presets := []Preset{
		{
			Name:        "rock",
			Description: "eighth-note hi-hat, kick on 1 and 3, snare on 2 and 4",
			BPM:         100,
			Pattern: Pattern{
				types.HiHat: steps(16, 0, 2, 4, 6, 8, 10, 12, 14),
				types.Kick:  steps(16, 0, 8),
				types.Snare: steps(16, 4, 12),
			},
		},
		{
			Name:        "four-on-the-floor",
			Description: "kick on every beat, open hat on the off-beats, snare on 2 and 4",
			BPM:         120,
			Pattern: Pattern{
				types.Kick:    steps(16, 0, 4, 8, 12),
				types.OpenHat: steps(16, 2, 6, 10, 14),
				types.Snare:   steps(16, 4, 12),
			},
		},
		{
			Name:        "backbeat",
			Description: "quarter-note hi-hat with a syncopated kick",
			BPM:         90,
			Pattern: Pattern{
				types.HiHat: steps(16, 0, 4, 8, 12),
				types.Kick:  steps(16, 0, 6, 8),
				types.Snare: steps(16, 4, 12),
			},
		},
		{
			Name:        "warmup",
			Description: "four hi-hat hits for checking input latency",
			Entries: []Entry{
				{Time: 0.25, Instrument: types.HiHat},
				{Time: 0.73, Instrument: types.HiHat},
				{Time: 1.22, Instrument: types.HiHat},
				{Time: 1.70, Instrument: types.HiHat},
			},
		},
	}
	slices.SortFunc(presets, func(a, b Preset) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return presets
}

// LookupPreset returns the built-in preset called name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range Presets() {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// PresetNames lists the built-in preset names in sorted order.
func PresetNames() []string {
	ps := Presets()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}
